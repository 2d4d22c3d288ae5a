package api

import (
	goerr "errors"

	"github.com/rarimo/duo-svc/internal/connectors"
	"github.com/rarimo/duo-svc/internal/core"
	"gitlab.com/distributed_lab/logan/v3"
)

// JSON-RPC error codes returned by the quorum namespace.
const (
	CodeInternal      = -32000
	CodeInvalidParams = -32602
	CodeNotFound      = -32001
	CodeForbidden     = -32002
	CodeConflict      = -32003
	CodeExpired       = -32004
	CodeRejected      = connectors.CodeRejected
	CodeTransient     = connectors.CodeTransient
)

type Error struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *Error) Error() string  { return e.Message }
func (e *Error) ErrorCode() int { return e.Code }

func (e *Error) ErrorData() interface{} {
	return map[string]bool{"retryable": e.Retryable}
}

var codes = []struct {
	code int
	errs []error
}{
	{CodeNotFound, []error{core.ErrRoomNotFound, core.ErrProposalNotFound}},
	{CodeExpired, []error{core.ErrExpired}},
	{CodeTransient, []error{core.ErrExternalServiceTransient}},
	{CodeRejected, []error{core.ErrExternalServiceRejected}},
	{CodeForbidden, []error{
		core.ErrNotParticipant,
		core.ErrNotDesignatedSubmitter,
		core.ErrSignatureMismatch,
	}},
	{CodeConflict, []error{
		core.ErrDuplicateActiveProposal,
		core.ErrInvalidState,
		core.ErrRoomClosed,
		core.ErrConcurrentUpdate,
		core.ErrAmbiguousOrMissingDepositor,
	}},
	{CodeInvalidParams, []error{
		core.ErrInvalidPayload,
		core.ErrInvalidAddress,
		core.ErrSameParticipant,
		core.ErrUnsupportedAsset,
		core.ErrUnsupportedChain,
		core.ErrPayloadHashMismatch,
		core.ErrInvalidOutcome,
		core.ErrMalformedSignature,
		core.ErrRecovery,
	}},
}

// toRPCError keeps domain errors readable and hides infrastructure failures.
func toRPCError(log *logan.Entry, method string, err error) error {
	if err == nil {
		return nil
	}

	for _, c := range codes {
		for _, target := range c.errs {
			if goerr.Is(err, target) {
				return &Error{
					Code:      c.code,
					Message:   err.Error(),
					Retryable: c.code == CodeTransient || target == core.ErrConcurrentUpdate,
				}
			}
		}
	}

	// whether the write happened is unknown, so retrying is not advertised
	log.WithError(err).WithField("method", method).Error("request failed")
	return &Error{Code: CodeInternal, Message: "internal error"}
}
