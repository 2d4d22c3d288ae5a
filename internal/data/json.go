package data

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a raw json document stored in a jsonb column.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

func (j *JSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported json source type %T", src)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(raw []byte) error {
	*j = append((*j)[:0], raw...)
	return nil
}

// NullJSON is a nullable jsonb column.
type NullJSON struct {
	JSON  JSON
	Valid bool
}

func NewNullJSON(raw []byte) NullJSON {
	return NullJSON{JSON: raw, Valid: len(raw) > 0}
}

func (n NullJSON) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.JSON.Value()
}

func (n NullJSON) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return n.JSON.MarshalJSON()
}

func (n *NullJSON) Scan(src interface{}) error {
	if src == nil {
		n.JSON, n.Valid = nil, false
		return nil
	}
	n.Valid = true
	return n.JSON.Scan(src)
}

// Signatures maps a normalized signer address to its hex encoded signature.
type Signatures map[string]string

func (s Signatures) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(s))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *Signatures) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = Signatures{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported signatures source type %T", src)
	}

	res := make(map[string]string)
	if err := json.Unmarshal(raw, &res); err != nil {
		return err
	}
	*s = res
	return nil
}

// Clone returns an independent copy safe to mutate.
func (s Signatures) Clone() Signatures {
	res := make(Signatures, len(s))
	for k, v := range s {
		res[k] = v
	}
	return res
}
