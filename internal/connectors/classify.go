package connectors

import (
	"context"
	goerr "errors"
	"io"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// Error codes the session service uses to classify failures itself.
const (
	CodeRejected  = -32010
	CodeTransient = -32011
)

var (
	ErrTransient = goerr.New("session service is unavailable, retrying is safe")
	ErrRejected  = goerr.New("session service rejected the request")
)

// Phrases are the fallback for services that report failures only as text.
// Rejection phrases are checked first: they name a concrete business reason.
var (
	rejectedPhrases = []string{
		"allowance",
		"liquidity",
		"insufficient",
		"balance",
	}
	transientPhrases = []string{
		"connection closed",
		"connection reset",
		"connection refused",
		"socket",
		"network",
		"timeout",
		"timed out",
		"eof",
		"broken pipe",
		"temporarily unavailable",
	}
)

// ServiceError is a classified session service failure. It matches either
// ErrTransient or ErrRejected and keeps the raw service message.
type ServiceError struct {
	Transient bool
	Code      int
	Message   string
}

func (e *ServiceError) Error() string {
	if e.Transient {
		return ErrTransient.Error() + ": " + e.Message
	}
	return ErrRejected.Error() + ": " + e.Message
}

func (e *ServiceError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient
	case ErrRejected:
		return !e.Transient
	}
	return false
}

// Classify sorts a raw session service error into transient or rejected.
// Structured signals win; unmatched errors are rejected with the raw message kept.
func Classify(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if goerr.As(err, &svcErr) {
		return svcErr
	}

	res := &ServiceError{Message: err.Error()}

	if goerr.Is(err, context.DeadlineExceeded) || goerr.Is(err, context.Canceled) ||
		goerr.Is(err, io.EOF) || goerr.Is(err, io.ErrUnexpectedEOF) {
		res.Transient = true
		return res
	}

	var rpcErr rpc.Error
	if goerr.As(err, &rpcErr) {
		res.Code = rpcErr.ErrorCode()
		switch res.Code {
		case CodeTransient:
			res.Transient = true
			return res
		case CodeRejected:
			return res
		}
	}

	var netErr net.Error
	if goerr.As(err, &netErr) {
		res.Transient = true
		return res
	}

	msg := strings.ToLower(res.Message)
	for _, phrase := range rejectedPhrases {
		if strings.Contains(msg, phrase) {
			return res
		}
	}
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			res.Transient = true
			return res
		}
	}

	return res
}
