package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
)

func TestRecordModeRoundTrip(t *testing.T) {
	for _, m := range []collab.RecordMode{
		collab.RecordModeStandard,
		collab.RecordModeSequential,
		collab.RecordModeFragmented,
	} {
		got, err := ParseRecordMode(RecordModeName(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestParseRecordModeAliasesCaseInsensitive(t *testing.T) {
	cases := map[string]collab.RecordMode{
		"standard":   collab.RecordModeStandard,
		"DEFAULT":    collab.RecordModeStandard,
		"Sequential": collab.RecordModeSequential,
		"append":     collab.RecordModeSequential,
		"fragmented": collab.RecordModeFragmented,
		"Fragment":   collab.RecordModeFragmented,
	}
	for alias, want := range cases {
		got, err := ParseRecordMode(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, want, got, alias)
	}
}

func TestParseRecordModeUnknown(t *testing.T) {
	_, err := ParseRecordMode("bogus")
	assert.Error(t, err)
}

func TestCLIWinsOnOverlap(t *testing.T) {
	dir := t.TempDir()
	iniPath := filepath.Join(dir, "pixelpilot.ini")
	require.NoError(t, os.WriteFile(iniPath, []byte(`
[video]
udp_port = 6000
vid_pt = 99
`), 0644))

	cli, err := ParseCLI([]string{"--config", iniPath, "--udp-port", "7000"})
	require.NoError(t, err)

	cfg, err := Resolve(cli)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.UDPPort, "CLI-set udp-port must win over INI")
	assert.Equal(t, 99, cfg.VideoPT, "INI value applies where CLI didn't override")
}

func TestRecordVideoOptionalValue(t *testing.T) {
	cli, err := ParseCLI([]string{"--record-video", "--verbose"})
	require.NoError(t, err)
	assert.True(t, cli.RecordVideoSet)
	assert.Empty(t, cli.RecordVideo, "a following flag must not be consumed as the value")

	cli2, err := ParseCLI([]string{"--record-video", "/tmp/out.mp4"})
	require.NoError(t, err)
	assert.True(t, cli2.RecordVideoSet)
	assert.Equal(t, "/tmp/out.mp4", cli2.RecordVideo)
}

func TestResolveRejectsEnabledRecordingWithoutPath(t *testing.T) {
	cli, err := ParseCLI([]string{"--record-video"})
	require.NoError(t, err)
	_, err = Resolve(cli)
	assert.Error(t, err)
}

func TestResolveRejectsNonPositiveAppsinkMaxBuffers(t *testing.T) {
	cli, err := ParseCLI([]string{"--appsink-max-buffers", "0"})
	require.NoError(t, err)
	_, err = Resolve(cli)
	assert.Error(t, err)
}

func TestINIRoundTrip(t *testing.T) {
	dir := t.TempDir()
	iniPath := filepath.Join(dir, "roundtrip.ini")

	cfg := Defaults()
	cfg.UDPPort = 6001
	cfg.VideoPT = 98
	cfg.Connector = "HDMI-A-1"
	cfg.RecordEnable = true
	cfg.RecordPath = "/tmp/a.mp4"
	cfg.RecordMode = collab.RecordModeFragmented

	f := WriteINI(cfg)
	require.NoError(t, f.SaveTo(iniPath))

	v, err := LoadINI(iniPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.UDPPort, v.udpPort)
	assert.Equal(t, cfg.VideoPT, v.videoPT)
	assert.Equal(t, cfg.Connector, v.connector)
	assert.Equal(t, cfg.RecordEnable, v.recEnable)
	assert.Equal(t, cfg.RecordPath, v.recPath)
	assert.Equal(t, RecordModeName(cfg.RecordMode), v.recMode)
}
