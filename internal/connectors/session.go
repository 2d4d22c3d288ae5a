package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rarimo/duo-svc/internal/metrics"
	"github.com/rarimo/duo-svc/internal/payload"
	"gitlab.com/distributed_lab/logan/v3"
)

const (
	methodCreate = "session_create"
	methodSubmit = "session_submitState"
	methodClose  = "session_close"
)

type CreateSessionRequest struct {
	Definition  payload.Definition   `json:"definition"`
	Allocations []payload.Allocation `json:"allocations"`
	SessionData string               `json:"session_data,omitempty"`
	Signatures  []string             `json:"signatures"`
}

type SubmitStateRequest struct {
	SessionID   string               `json:"session_id"`
	Intent      payload.Intent       `json:"intent"`
	Version     uint64               `json:"version"`
	Allocations []payload.Allocation `json:"allocations"`
	SessionData string               `json:"session_data,omitempty"`
	Signatures  []string             `json:"signatures"`
}

type CloseSessionRequest struct {
	SessionID   string               `json:"session_id"`
	Allocations []payload.Allocation `json:"allocations"`
	Version     uint64               `json:"version"`
	SessionData string               `json:"session_data,omitempty"`
	Signatures  []string             `json:"signatures"`
}

// SessionResult is what the session service returned. Raw keeps the full response.
type SessionResult struct {
	SessionID string          `json:"session_id,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// SessionService settles signed session states. Failures are *ServiceError.
type SessionService interface {
	CreateSession(ctx context.Context, request CreateSessionRequest) (*SessionResult, error)
	SubmitState(ctx context.Context, request SubmitStateRequest) (*SessionResult, error)
	CloseSession(ctx context.Context, request CloseSessionRequest) (*SessionResult, error)
}

// SessionConnector calls the session service over JSON-RPC.
type SessionConnector struct {
	client *rpc.Client
	log    *logan.Entry
}

var _ SessionService = &SessionConnector{}

func NewSessionConnector(client *rpc.Client, log *logan.Entry) *SessionConnector {
	return &SessionConnector{
		client: client,
		log:    log,
	}
}

func (c *SessionConnector) CreateSession(ctx context.Context, request CreateSessionRequest) (*SessionResult, error) {
	res, err := c.call(ctx, methodCreate, request)
	if err != nil {
		return nil, err
	}

	// The session may exist already, so the proposal must stay ready for a
	// resubmission or a manual result once the raw response is reconciled.
	if res.SessionID == "" {
		c.log.WithField("raw", string(res.Raw)).Error("session service returned no session id")
		return nil, &ServiceError{
			Transient: true,
			Message:   "session service returned no session id: " + string(res.Raw),
		}
	}
	return res, nil
}

func (c *SessionConnector) SubmitState(ctx context.Context, request SubmitStateRequest) (*SessionResult, error) {
	return c.call(ctx, methodSubmit, request)
}

func (c *SessionConnector) CloseSession(ctx context.Context, request CloseSessionRequest) (*SessionResult, error) {
	return c.call(ctx, methodClose, request)
}

func (c *SessionConnector) call(ctx context.Context, method string, request interface{}) (*SessionResult, error) {
	start := time.Now()

	var raw json.RawMessage
	err := c.client.CallContext(ctx, &raw, method, request)
	if err != nil {
		classified := Classify(err)
		outcome := "rejected"
		if classified.Transient {
			outcome = "transient"
		}
		metrics.SessionCalls.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())

		c.log.WithError(err).WithFields(logan.F{
			"method":    method,
			"transient": classified.Transient,
			"code":      classified.Code,
		}).Warn("session service call failed")
		return nil, classified
	}
	metrics.SessionCalls.WithLabelValues(method, "ok").Observe(time.Since(start).Seconds())

	res := SessionResult{Raw: raw}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &body); err == nil {
			res.SessionID = body.SessionID
		}
	}

	c.log.WithField("method", method).Debug("session service call succeeded")
	return &res, nil
}

func (c *SessionConnector) Close() {
	c.client.Close()
}
