package core

import (
	goerr "errors"

	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/connectors"
	"github.com/rarimo/duo-svc/internal/payload"
	"github.com/rarimo/duo-svc/internal/signature"
)

var (
	ErrRoomNotFound                = goerr.New("room not found")
	ErrProposalNotFound            = goerr.New("proposal not found")
	ErrNotParticipant              = address.ErrNotParticipant
	ErrDuplicateActiveProposal     = goerr.New("an active proposal of this kind already exists in the room")
	ErrInvalidState                = goerr.New("proposal status does not allow this transition")
	ErrExpired                     = goerr.New("expired, a new proposal is required")
	ErrRoomClosed                  = goerr.New("room is closed")
	ErrSameParticipant             = goerr.New("room participants must differ")
	ErrInvalidAddress              = goerr.New("invalid participant address")
	ErrUnsupportedAsset            = goerr.New("unsupported asset")
	ErrUnsupportedChain            = goerr.New("unsupported chain")
	ErrPayloadHashMismatch         = goerr.New("payload hash does not match the canonical payload")
	ErrAmbiguousOrMissingDepositor = goerr.New("deposit must increase exactly one participant allocation")
	ErrNotDesignatedSubmitter      = goerr.New("only the depositing participant may submit this proposal")
	ErrInvalidOutcome              = goerr.New("outcome must be submitted or failed")
	ErrConcurrentUpdate            = goerr.New("proposal is being updated concurrently, retry later")

	ErrInvalidPayload     = payload.ErrInvalidPayload
	ErrMalformedSignature = signature.ErrMalformedSignature
	ErrRecovery           = signature.ErrRecovery
	ErrSignatureMismatch  = signature.ErrSignatureMismatch

	ErrExternalServiceTransient = connectors.ErrTransient
	ErrExternalServiceRejected  = connectors.ErrRejected
)
