package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignResource(t *testing.T) {
	sig := SignResource("secret", "note-1", "notes/a.png")

	assert.True(t, VerifyResource("secret", sig, "note-1", "notes/a.png"))
	assert.False(t, VerifyResource("secret", sig, "note-2", "notes/a.png"))
	assert.False(t, VerifyResource("other", sig, "note-1", "notes/a.png"))
	assert.NotEqual(t, sig, SignResource("secret", "note-1:notes/a.png", ""))
}
