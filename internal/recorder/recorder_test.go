package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
)

func TestHandleSampleWritesBytesAndTracksStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	rec, err := New(zerolog.Nop(), collab.RecordConfig{OutputPath: path, Mode: collab.RecordModeStandard})
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.HandleSample(collab.AccessUnit{Data: []byte{1, 2, 3}, PTS: time.Second, PTSValid: true}))
	require.NoError(t, rec.HandleSample(collab.AccessUnit{Data: []byte{4, 5}, PTS: 2 * time.Second, PTSValid: true}))

	stats := rec.GetStats()
	assert.EqualValues(t, 5, stats.Bytes)
	assert.EqualValues(t, time.Second, stats.MediaDurationNs)
	assert.Equal(t, path, stats.OutputPath)

	on, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, on)
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New(zerolog.Nop(), collab.RecordConfig{})
	assert.Error(t, err)
}
