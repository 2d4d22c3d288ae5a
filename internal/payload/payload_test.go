package payload

import (
	"testing"

	"github.com/rarimo/duo-svc/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x8ba1f109551bd432803012645ac136ddd64dba72"
	bob   = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
)

var room = data.Room{ID: "room", ParticipantA: alice, ParticipantB: bob, Asset: "usdc", Chain: "base"}

func TestParseCreateSession(t *testing.T) {
	raw := []byte(`{
		"definition": {
			"protocol": "duo/v1",
			"participants": ["0x8BA1F109551BD432803012645AC136DDD64DBA72", "0xab5801a7d398351b8be11c439e05c5b3259aec9b"],
			"weights": [50, 50],
			"quorum": 100,
			"challenge": 3600,
			"nonce": 7
		},
		"allocations": [
			{"participant": "0x8BA1F109551BD432803012645AC136DDD64DBA72", "asset": "USDC", "amount": "005000000"},
			{"participant": "0xab5801a7d398351b8be11c439e05c5b3259aec9b", "asset": "usdc", "amount": "0"}
		]
	}`)

	action, err := Parse(data.ProposalKindCreateSession, raw)
	require.NoError(t, err)
	require.NoError(t, ValidateFor(action, room))

	create, ok := action.(*CreateSession)
	require.True(t, ok)
	assert.Equal(t, alice, create.Definition.Participants[0])
	assert.Equal(t, "usdc", create.AllocationList[0].Asset)
	assert.Equal(t, "5000000", create.AllocationList[0].Amount)
	assert.Equal(t, data.ProposalKindCreateSession, action.Kind())
}

func TestParseRejects(t *testing.T) {
	cases := map[string]struct {
		kind data.ProposalKind
		raw  string
	}{
		"unknown kind":     {"transfer", `{}`},
		"unknown field":    {data.ProposalKindOperate, `{"allocations":[{"participant":"` + alice + `","asset":"usdc","amount":"1"}],"extra":1}`},
		"empty":            {data.ProposalKindCloseSession, `{"allocations":[]}`},
		"negative amount":  {data.ProposalKindOperate, `{"allocations":[{"participant":"` + alice + `","asset":"usdc","amount":"-1"}]}`},
		"decimal amount":   {data.ProposalKindOperate, `{"allocations":[{"participant":"` + alice + `","asset":"usdc","amount":"1.5"}]}`},
		"bad participant":  {data.ProposalKindOperate, `{"allocations":[{"participant":"alice","asset":"usdc","amount":"1"}]}`},
		"unknown intent":   {data.ProposalKindOperate, `{"intent":"borrow","allocations":[{"participant":"` + alice + `","asset":"usdc","amount":"1"}]}`},
		"missing protocol": {data.ProposalKindCreateSession, `{"definition":{},"allocations":[{"participant":"` + alice + `","asset":"usdc","amount":"1"}]}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.kind, []byte(tc.raw))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestValidateForRoom(t *testing.T) {
	stranger := "0x0000000000000000000000000000000000000001"

	action, err := Parse(data.ProposalKindOperate, []byte(`{"allocations":[{"participant":"`+stranger+`","asset":"usdc","amount":"1"}]}`))
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateFor(action, room), ErrInvalidPayload)

	action, err = Parse(data.ProposalKindOperate, []byte(`{"allocations":[
		{"participant":"`+alice+`","asset":"usdc","amount":"1"},
		{"participant":"`+alice+`","asset":"usdc","amount":"2"}]}`))
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateFor(action, room), ErrInvalidPayload)

	action, err = Parse(data.ProposalKindCreateSession, []byte(`{"definition":{"protocol":"duo/v1","participants":["`+bob+`","`+alice+`"],"weights":[50,50],"quorum":100},
		"allocations":[{"participant":"`+alice+`","asset":"usdc","amount":"1"}]}`))
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateFor(action, room), ErrInvalidPayload, "participants order matters")
}

func TestHashIsCanonical(t *testing.T) {
	first, err := Parse(data.ProposalKindOperate, []byte(`{"allocations":[{"amount":"10","asset":"USDC","participant":"0x8BA1F109551BD432803012645AC136DDD64DBA72"}]}`))
	require.NoError(t, err)

	second, err := Parse(data.ProposalKindOperate, []byte(`{"intent":"operate","allocations":[{"participant":"`+alice+`","asset":"usdc","amount":"10"}]}`))
	require.NoError(t, err)

	assert.Equal(t, Canonical(first), Canonical(second))
	assert.Equal(t, Hash(first), Hash(second))
	assert.Len(t, Hash(first), 66)
	assert.Equal(t, IntentOperate, IntentOf(first))

	third, err := Parse(data.ProposalKindOperate, []byte(`{"intent":"deposit","allocations":[{"participant":"`+alice+`","asset":"usdc","amount":"10"}]}`))
	require.NoError(t, err)
	assert.NotEqual(t, Hash(first), Hash(third))
	assert.Equal(t, IntentDeposit, IntentOf(third))
}
