package ledger

import (
	goerr "errors"
	"math/big"
	"strings"
)

// DefaultDisplayDecimals is only a display fallback for assets without configured decimals.
const DefaultDisplayDecimals = 6

var ErrInvalidAmount = goerr.New("invalid amount")

// ParseAmount converts a human readable decimal string into minor units.
// More fractional digits than decimals is an error, not a rounding.
func ParseAmount(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidAmount
	}

	whole, frac := value, ""
	if i := strings.IndexByte(value, '.'); i >= 0 {
		whole, frac = value[:i], value[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) || !digits(whole) || (frac != "" && !digits(frac)) {
		return nil, ErrInvalidAmount
	}

	frac += strings.Repeat("0", int(decimals)-len(frac))
	res, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return res, nil
}

// FormatAmount renders minor units as a decimal string without trailing zeros.
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Abs(amount)
	if amount.Sign() < 0 {
		sign = "-"
	}

	s := abs.String()
	if decimals == 0 {
		return sign + s
	}

	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}

	whole, frac := s[:len(s)-int(decimals)], strings.TrimRight(s[len(s)-int(decimals):], "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
