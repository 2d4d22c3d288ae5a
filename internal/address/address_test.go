package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair [2]string

func (p pair) Participants() (string, string) { return p[0], p[1] }

const (
	alice = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	bob   = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "0x8ba1f109551bd432803012645ac136ddd64dba72", Normalize(alice))
	assert.Equal(t, Normalize(alice), Normalize("  "+alice+"\n"))
	assert.True(t, Equal(alice, "0x8BA1F109551BD432803012645AC136DDD64DBA72"))
	assert.False(t, Equal(alice, bob))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(alice))
	assert.True(t, IsValid(Normalize(bob)))
	assert.False(t, IsValid("0x1234"))
	assert.False(t, IsValid("alice"))
}

func TestParticipantAndCounterpart(t *testing.T) {
	room := pair{Normalize(alice), Normalize(bob)}

	assert.True(t, IsParticipant(room, alice))
	assert.True(t, IsParticipant(room, "0XAB5801A7D398351B8BE11C439E05C5B3259AEC9B"))
	assert.False(t, IsParticipant(room, "0x0000000000000000000000000000000000000001"))

	other, err := Counterpart(room, alice)
	require.NoError(t, err)
	assert.Equal(t, Normalize(bob), other)

	other, err = Counterpart(room, bob)
	require.NoError(t, err)
	assert.Equal(t, Normalize(alice), other)

	_, err = Counterpart(room, "0x0000000000000000000000000000000000000001")
	assert.ErrorIs(t, err, ErrNotParticipant)
}
