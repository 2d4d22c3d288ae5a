package api

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rarimo/duo-svc/internal/core"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/ledger"
	"github.com/rarimo/duo-svc/internal/notify"
	"github.com/rarimo/duo-svc/internal/payload"
	"gitlab.com/distributed_lab/logan/v3"
)

// Namespace prefixes every method, e.g. quorum_createRoom.
const Namespace = "quorum"

// Engine is the part of core.Service exposed over JSON-RPC.
type Engine interface {
	CreateRoom(ctx context.Context, request core.CreateRoomRequest) (*data.Room, error)
	GetRoom(ctx context.Context, id string) (*data.Room, error)
	ListRooms(ctx context.Context, identity string) ([]data.Room, error)
	CreateProposal(ctx context.Context, request core.CreateProposalRequest) (*data.Proposal, error)
	GetProposal(ctx context.Context, id string) (*data.Proposal, error)
	ListProposals(ctx context.Context, roomID string) ([]data.Proposal, error)
	Sign(ctx context.Context, request core.SignRequest) (*core.SignResult, error)
	PrepareSubmit(ctx context.Context, proposalID, actor string) (*core.SubmissionContext, error)
	Submit(ctx context.Context, proposalID, actor string) (*data.Proposal, error)
	ApplySubmissionResult(ctx context.Context, request core.ApplyResultRequest) (*data.Proposal, error)
	Allocations(ctx context.Context, roomID string) (ledger.Allocations, error)
	PreviewProposal(ctx context.Context, proposalID string) (map[string]ledger.Delta, error)
	ListEvents(ctx context.Context, roomID string, limit uint64) ([]data.Event, error)
	Params() core.Params
}

var _ Engine = &core.Service{}

// QuorumAPI is registered under Namespace. Exported methods become RPC methods.
type QuorumAPI struct {
	engine Engine
	hub    *notify.Hub
	log    *logan.Entry
}

func NewQuorumAPI(engine Engine, hub *notify.Hub, log *logan.Entry) *QuorumAPI {
	return &QuorumAPI{
		engine: engine,
		hub:    hub,
		log:    log,
	}
}

func (a *QuorumAPI) decimals(asset string) uint8 {
	if decimals, ok := a.engine.Params().Decimals(asset); ok {
		return decimals
	}
	return ledger.DefaultDisplayDecimals
}

func (a *QuorumAPI) CreateRoom(ctx context.Context, request core.CreateRoomRequest) (*Room, error) {
	room, err := a.engine.CreateRoom(ctx, request)
	if err != nil {
		return nil, toRPCError(a.log, "createRoom", err)
	}

	res := newRoom(room, a.decimals(room.Asset))
	return &res, nil
}

func (a *QuorumAPI) GetRoom(ctx context.Context, id string) (*Room, error) {
	room, err := a.engine.GetRoom(ctx, id)
	if err != nil {
		return nil, toRPCError(a.log, "getRoom", err)
	}

	res := newRoom(room, a.decimals(room.Asset))
	return &res, nil
}

func (a *QuorumAPI) ListRooms(ctx context.Context, identity string) ([]Room, error) {
	rooms, err := a.engine.ListRooms(ctx, identity)
	if err != nil {
		return nil, toRPCError(a.log, "listRooms", err)
	}

	res := make([]Room, 0, len(rooms))
	for i := range rooms {
		res = append(res, newRoom(&rooms[i], a.decimals(rooms[i].Asset)))
	}
	return res, nil
}

func (a *QuorumAPI) CreateProposal(ctx context.Context, request core.CreateProposalRequest) (*Proposal, error) {
	proposal, err := a.engine.CreateProposal(ctx, request)
	if err != nil {
		return nil, toRPCError(a.log, "createProposal", err)
	}

	res := newProposal(proposal)
	return &res, nil
}

func (a *QuorumAPI) GetProposal(ctx context.Context, id string) (*Proposal, error) {
	proposal, err := a.engine.GetProposal(ctx, id)
	if err != nil {
		return nil, toRPCError(a.log, "getProposal", err)
	}

	res := newProposal(proposal)
	return &res, nil
}

func (a *QuorumAPI) ListProposals(ctx context.Context, roomID string) ([]Proposal, error) {
	proposals, err := a.engine.ListProposals(ctx, roomID)
	if err != nil {
		return nil, toRPCError(a.log, "listProposals", err)
	}
	return newProposals(proposals), nil
}

func (a *QuorumAPI) SignProposal(ctx context.Context, request core.SignRequest) (*SignResult, error) {
	signed, err := a.engine.Sign(ctx, request)
	if err != nil {
		return nil, toRPCError(a.log, "signProposal", err)
	}

	return &SignResult{Proposal: newProposal(signed.Proposal), Weight: signed.Weight}, nil
}

func (a *QuorumAPI) PrepareSubmit(ctx context.Context, proposalID, actor string) (*Submission, error) {
	sc, err := a.engine.PrepareSubmit(ctx, proposalID, actor)
	if err != nil {
		return nil, toRPCError(a.log, "prepareSubmit", err)
	}

	return &Submission{
		Proposal:  newProposal(sc.Proposal),
		Deltas:    newDeltas(sc.Deltas, a.decimals(sc.Room.Asset)),
		Version:   sc.Version,
		Submitter: sc.Submitter,
	}, nil
}

// SubmitProposal lets the service call the session service itself.
func (a *QuorumAPI) SubmitProposal(ctx context.Context, proposalID, actor string) (*Proposal, error) {
	proposal, err := a.engine.Submit(ctx, proposalID, actor)
	if err != nil {
		return nil, toRPCError(a.log, "submitProposal", err)
	}

	res := newProposal(proposal)
	return &res, nil
}

// ApplySubmissionResult records the outcome of a submission the client performed itself.
func (a *QuorumAPI) ApplySubmissionResult(ctx context.Context, request core.ApplyResultRequest) (*Proposal, error) {
	proposal, err := a.engine.ApplySubmissionResult(ctx, request)
	if err != nil {
		return nil, toRPCError(a.log, "applySubmissionResult", err)
	}

	res := newProposal(proposal)
	return &res, nil
}

func (a *QuorumAPI) Allocations(ctx context.Context, roomID string) (map[string]Amount, error) {
	room, err := a.engine.GetRoom(ctx, roomID)
	if err != nil {
		return nil, toRPCError(a.log, "allocations", err)
	}

	allocations, err := a.engine.Allocations(ctx, roomID)
	if err != nil {
		return nil, toRPCError(a.log, "allocations", err)
	}
	return newAllocations(allocations, a.decimals(room.Asset)), nil
}

func (a *QuorumAPI) PreviewProposal(ctx context.Context, proposalID string) (map[string]Delta, error) {
	proposal, err := a.engine.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, toRPCError(a.log, "previewProposal", err)
	}

	room, err := a.engine.GetRoom(ctx, proposal.RoomID)
	if err != nil {
		return nil, toRPCError(a.log, "previewProposal", err)
	}

	deltas, err := a.engine.PreviewProposal(ctx, proposalID)
	if err != nil {
		return nil, toRPCError(a.log, "previewProposal", err)
	}
	return newDeltas(deltas, a.decimals(room.Asset)), nil
}

// ListEvents returns the newest events first. Limit is optional.
func (a *QuorumAPI) ListEvents(ctx context.Context, roomID string, limit *uint64) ([]Event, error) {
	var n uint64
	if limit != nil {
		n = *limit
	}

	events, err := a.engine.ListEvents(ctx, roomID, n)
	if err != nil {
		return nil, toRPCError(a.log, "listEvents", err)
	}
	return newEvents(events), nil
}

// HashPayload returns the canonical payload and the hash participants have to sign.
func (a *QuorumAPI) HashPayload(kind data.ProposalKind, raw json.RawMessage) (*HashResult, error) {
	action, err := payload.Parse(kind, raw)
	if err != nil {
		return nil, toRPCError(a.log, "hashPayload", err)
	}

	return &HashResult{
		Payload:     payload.Canonical(action),
		PayloadHash: payload.Hash(action),
	}, nil
}

// RoomChanges pushes a RoomChange every time something happens in the room.
// Notifications may repeat; clients are expected to re-fetch.
func (a *QuorumAPI) RoomChanges(ctx context.Context, roomID string) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	if _, err := a.engine.GetRoom(ctx, roomID); err != nil {
		return nil, toRPCError(a.log, "roomChanges", err)
	}

	sub := notifier.CreateSubscription()
	name := string(sub.ID)
	a.hub.Subscribe(name, roomID, func(changed string) error {
		return notifier.Notify(sub.ID, RoomChange{RoomID: changed})
	})

	go func() {
		<-sub.Err()
		a.hub.Unsubscribe(name)
		a.log.WithField("subscription", name).Debug("room subscription closed")
	}()

	return sub, nil
}
