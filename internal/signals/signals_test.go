package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsumeRestartClearsFlag(t *testing.T) {
	var i Intents
	assert.False(t, i.ConsumeRestart())

	i.Restart.Store(true)
	assert.True(t, i.ConsumeRestart())
	assert.False(t, i.ConsumeRestart(), "consuming clears the intent")
}

func TestConsumeRecordingIntents(t *testing.T) {
	var i Intents
	i.RecordingOn.Store(true)
	assert.True(t, i.ConsumeRecordingOn())
	assert.False(t, i.ConsumeRecordingOn())

	i.RecordingOff.Store(true)
	assert.True(t, i.ConsumeRecordingOff())
	assert.False(t, i.ConsumeRecordingOff())
}
