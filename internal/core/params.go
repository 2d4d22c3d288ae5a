package core

import (
	"strings"
	"time"

	"github.com/rarimo/duo-svc/internal/payload"
)

const (
	DefaultProposalTTL   = 24 * time.Hour
	DefaultSubmitTimeout = 30 * time.Second
)

// Params holds the static rules the engine validates against.
type Params struct {
	ProposalTTL time.Duration
	// RoomTTL of zero means rooms never expire.
	RoomTTL time.Duration
	// RequiredQuorum is always payload.RequiredQuorum, other values are replaced.
	RequiredQuorum int64
	// Assets maps lowercase asset symbols to their decimal count.
	Assets        map[string]uint8
	Chains        map[string]struct{}
	SubmitTimeout time.Duration
}

func (p Params) withDefaults() Params {
	if p.ProposalTTL <= 0 {
		p.ProposalTTL = DefaultProposalTTL
	}
	// weights are fixed at 50/50, so any other threshold is unreachable or unilateral
	p.RequiredQuorum = payload.RequiredQuorum
	if p.SubmitTimeout <= 0 {
		p.SubmitTimeout = DefaultSubmitTimeout
	}

	assets := make(map[string]uint8, len(p.Assets))
	for symbol, decimals := range p.Assets {
		assets[normalizeSymbol(symbol)] = decimals
	}
	p.Assets = assets

	chains := make(map[string]struct{}, len(p.Chains))
	for chain := range p.Chains {
		chains[normalizeSymbol(chain)] = struct{}{}
	}
	p.Chains = chains

	return p
}

// Decimals returns the decimal count of the asset and false for unknown assets.
func (p Params) Decimals(asset string) (uint8, bool) {
	decimals, ok := p.Assets[normalizeSymbol(asset)]
	return decimals, ok
}

func (p Params) IsChainAllowed(chain string) bool {
	_, ok := p.Chains[normalizeSymbol(chain)]
	return ok
}

func normalizeSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}
