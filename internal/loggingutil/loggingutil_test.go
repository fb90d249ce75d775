package loggingutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubsystem(t *testing.T) {
	assert.Equal(t, "server.kv", Subsystem("server", "", " kv."))
	assert.Equal(t, "", Subsystem())
	assert.Equal(t, "", Subsystem(" ", "."))
}

func TestEnsureLogger(t *testing.T) {
	assert.NotNil(t, EnsureLogger(nil))
	l := WithSubsystem(nil, "client", "kv")
	assert.NotNil(t, l)
	l.Info("discarded")
}

func TestApplyLevel(t *testing.T) {
	l := EnsureLogger(nil)
	_, ok := ApplyLevel(l, "debug")
	assert.True(t, ok)
	_, ok = ApplyLevel(l, "")
	assert.True(t, ok)
	_, ok = ApplyLevel(l, "chatty")
	assert.False(t, ok)
}
