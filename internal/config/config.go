// Package config resolves the ingest core's settings from defaults, an
// optional INI file, and CLI flags, with CLI winning on any overlapping
// key (spec.md §6, §9). The merge is a single deterministic pass that
// tracks which fields the CLI actually set, rather than re-running parses
// in sequence, per the design note in spec.md §9.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/errs"
)

// Config is the fully resolved configuration for one run of the core.
type Config struct {
	CardPath          string
	Connector         string
	PlaneID           int
	UDPPort           int
	VideoPT           int
	AppsinkMaxBuffers int

	RecordEnable bool
	RecordPath   string
	RecordMode   collab.RecordMode

	GstLog  bool
	Verbose bool
}

// Defaults returns the baseline configuration before any INI/CLI overlay.
func Defaults() Config {
	return Config{
		CardPath:          "/dev/dri/card0",
		Connector:         "",
		PlaneID:           76,
		UDPPort:           5600,
		VideoPT:           97,
		AppsinkMaxBuffers: 4,
		RecordMode:        collab.RecordModeStandard,
	}
}

// ParseRecordMode maps a case-insensitive mode alias to a RecordMode.
func ParseRecordMode(name string) (collab.RecordMode, error) {
	switch strings.ToLower(name) {
	case "standard", "default":
		return collab.RecordModeStandard, nil
	case "sequential", "append":
		return collab.RecordModeSequential, nil
	case "fragmented", "fragment":
		return collab.RecordModeFragmented, nil
	default:
		return 0, fmt.Errorf("unknown record mode %q", name)
	}
}

// RecordModeName returns the canonical alias for a RecordMode, the inverse
// of ParseRecordMode, so cfg_parse_record_mode(cfg_record_mode_name(m)) ==
// m round-trips per spec.md §8.
func RecordModeName(m collab.RecordMode) string {
	switch m {
	case collab.RecordModeStandard:
		return "standard"
	case collab.RecordModeSequential:
		return "sequential"
	case collab.RecordModeFragmented:
		return "fragmented"
	default:
		return "standard"
	}
}

// CLIFlags holds the parsed CLI values plus which flags were explicitly
// set, so Resolve can apply "CLI wins on overlap" without re-parsing.
type CLIFlags struct {
	FlagSet *pflag.FlagSet

	Card              string
	Connector         string
	PlaneID           int
	ConfigPath        string
	UDPPort           int
	VideoPT           int
	AppsinkMaxBuffers int
	RecordVideo       string
	RecordVideoSet    bool
	NoRecordVideo     bool
	RecordMode        string
	GstLog            bool
	Verbose           bool
	Help              bool
}

// ParseCLI parses os.Args-style arguments (excluding argv[0]) into CLIFlags.
// --record-video takes an optional value: if the following token starts
// with "--" (or is absent) it is treated as a bare flag rather than
// consuming the next argument as a value, per spec.md §6.
func ParseCLI(args []string) (*CLIFlags, error) {
	fs := pflag.NewFlagSet("pixelpilot", pflag.ContinueOnError)
	fs.SetOutput(nil)

	c := &CLIFlags{FlagSet: fs}
	fs.StringVar(&c.Card, "card", "/dev/dri/card0", "DRM card device path")
	fs.StringVar(&c.Connector, "connector", "", "DRM connector name (auto if empty)")
	fs.IntVar(&c.PlaneID, "plane-id", 76, "DRM plane id")
	fs.StringVar(&c.ConfigPath, "config", "", "INI config file path")
	fs.IntVar(&c.UDPPort, "udp-port", 5600, "UDP listen port")
	fs.IntVar(&c.VideoPT, "vid-pt", 97, "expected RTP payload type")
	fs.IntVar(&c.AppsinkMaxBuffers, "appsink-max-buffers", 4, "AU sink max buffers")
	fs.StringVar(&c.RecordMode, "record-mode", "standard", "recording mode")
	fs.BoolVar(&c.NoRecordVideo, "no-record-video", false, "disable recording")
	fs.BoolVar(&c.GstLog, "gst-log", false, "enable GStreamer debug logging")
	fs.BoolVar(&c.Verbose, "verbose", false, "verbose logging")
	fs.BoolVarP(&c.Help, "help", "h", false, "show help")

	// --record-video has an optional value, which pflag's native flags
	// don't support directly; pre-scan args and splice it out before
	// handing the rest to the FlagSet.
	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--record-video" {
			c.RecordVideoSet = true
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				c.RecordVideo = args[i+1]
				i++
			}
			continue
		}
		if strings.HasPrefix(a, "--record-video=") {
			c.RecordVideoSet = true
			c.RecordVideo = strings.TrimPrefix(a, "--record-video=")
			continue
		}
		filtered = append(filtered, a)
	}

	if err := fs.Parse(filtered); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "parse CLI flags: %w", err)
	}
	return c, nil
}

// iniValues is the minimal shape we read out of an INI file.
type iniValues struct {
	hasVideo          bool
	cardPath          string
	connector         string
	planeID           int
	udpPort           int
	videoPT           int
	appsinkMaxBuffers int
	gstLog            bool

	hasRecord  bool
	recEnable  bool
	recPath    string
	recMode    string
}

// LoadINI reads the [video]/[record] sections, resolving key aliases and
// case-insensitive keys/bools per spec.md §6.
func LoadINI(path string) (*iniValues, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "load INI %s: %w", path, err)
	}

	v := &iniValues{}
	if sec, err := f.GetSection("video"); err == nil {
		v.hasVideo = true
		v.cardPath = firstKey(sec, "card_path")
		v.connector = firstKey(sec, "connector", "connector_name")
		v.planeID = atoiOr(firstKey(sec, "plane_id"), 0)
		v.udpPort = atoiOr(firstKey(sec, "udp_port"), 0)
		v.videoPT = atoiOr(firstKey(sec, "vid_pt", "video_payload_type"), 0)
		v.appsinkMaxBuffers = atoiOr(firstKey(sec, "appsink_max_buffers"), 0)
		v.gstLog = parseBool(firstKey(sec, "gst_log"))
	}
	if sec, err := f.GetSection("record"); err == nil {
		v.hasRecord = true
		v.recEnable = parseBool(firstKey(sec, "enable"))
		v.recPath = firstKey(sec, "output_path", "path")
		v.recMode = firstKey(sec, "mode")
	}
	return v, nil
}

func firstKey(sec *ini.Section, names ...string) string {
	for _, n := range names {
		if sec.HasKey(n) {
			if val := sec.Key(n).String(); val != "" {
				return val
			}
		}
	}
	return ""
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

// Resolve produces the final Config: defaults, then INI (if --config was
// given), then CLI values for any flag the user actually set. CLI always
// wins on overlap.
func Resolve(cli *CLIFlags) (Config, error) {
	cfg := Defaults()

	if cli.ConfigPath != "" {
		v, err := LoadINI(cli.ConfigPath)
		if err != nil {
			return Config{}, err
		}
		if v.hasVideo {
			applyIfSet(&cfg.CardPath, v.cardPath)
			applyIfSet(&cfg.Connector, v.connector)
			if v.planeID != 0 {
				cfg.PlaneID = v.planeID
			}
			if v.udpPort != 0 {
				cfg.UDPPort = v.udpPort
			}
			if v.videoPT != 0 {
				cfg.VideoPT = v.videoPT
			}
			if v.appsinkMaxBuffers != 0 {
				cfg.AppsinkMaxBuffers = v.appsinkMaxBuffers
			}
			cfg.GstLog = v.gstLog
		}
		if v.hasRecord {
			cfg.RecordEnable = v.recEnable
			cfg.RecordPath = v.recPath
			if v.recMode != "" {
				if m, err := ParseRecordMode(v.recMode); err == nil {
					cfg.RecordMode = m
				}
			}
		}
	}

	fs := cli.FlagSet
	if fs.Changed("card") {
		cfg.CardPath = cli.Card
	}
	if fs.Changed("connector") {
		cfg.Connector = cli.Connector
	}
	if fs.Changed("plane-id") {
		cfg.PlaneID = cli.PlaneID
	}
	if fs.Changed("udp-port") {
		cfg.UDPPort = cli.UDPPort
	}
	if fs.Changed("vid-pt") {
		cfg.VideoPT = cli.VideoPT
	}
	if fs.Changed("appsink-max-buffers") {
		cfg.AppsinkMaxBuffers = cli.AppsinkMaxBuffers
	}
	if fs.Changed("gst-log") {
		cfg.GstLog = cli.GstLog
	}
	if fs.Changed("verbose") {
		cfg.Verbose = cli.Verbose
	}
	if fs.Changed("record-mode") {
		m, err := ParseRecordMode(cli.RecordMode)
		if err != nil {
			return Config{}, errs.Wrap(errs.KindConfig, "record-mode: %w", err)
		}
		cfg.RecordMode = m
	}
	if cli.RecordVideoSet {
		cfg.RecordEnable = true
		if cli.RecordVideo != "" {
			cfg.RecordPath = cli.RecordVideo
		}
	}
	if fs.Changed("no-record-video") && cli.NoRecordVideo {
		cfg.RecordEnable = false
	}

	if cfg.AppsinkMaxBuffers <= 0 {
		return Config{}, errs.Wrap(errs.KindConfig, "appsink-max-buffers must be positive, got %d", cfg.AppsinkMaxBuffers)
	}
	if cfg.RecordEnable && cfg.RecordPath == "" {
		return Config{}, errs.Wrap(errs.KindConfig, "recording enabled with empty output path")
	}
	return cfg, nil
}

func applyIfSet(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// WriteINI serializes cfg back into INI form, for the round-trip test
// property in spec.md §8. Keys are written lower-case; LoadINI's
// case-insensitive loader reads them back identically.
func WriteINI(cfg Config) *ini.File {
	f := ini.Empty()
	video, _ := f.NewSection("video")
	video.NewKey("card_path", cfg.CardPath)
	video.NewKey("connector", cfg.Connector)
	video.NewKey("plane_id", fmt.Sprintf("%d", cfg.PlaneID))
	video.NewKey("udp_port", fmt.Sprintf("%d", cfg.UDPPort))
	video.NewKey("vid_pt", fmt.Sprintf("%d", cfg.VideoPT))
	video.NewKey("appsink_max_buffers", fmt.Sprintf("%d", cfg.AppsinkMaxBuffers))
	video.NewKey("gst_log", fmt.Sprintf("%t", cfg.GstLog))

	record, _ := f.NewSection("record")
	record.NewKey("enable", fmt.Sprintf("%t", cfg.RecordEnable))
	record.NewKey("output_path", cfg.RecordPath)
	record.NewKey("mode", RecordModeName(cfg.RecordMode))
	return f
}
