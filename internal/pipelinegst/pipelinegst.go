// Package pipelinegst constructs the go-gst streaming graph described in
// spec.md §4.2-§4.4: appsrc -> head queue (leak upstream) -> jitter buffer
// -> RTP/H.265 depayloader -> H.265 parser -> caps enforcement -> appsink.
//
// Following the teacher's pattern in api/pkg/desktop/gst_pipeline.go, the
// whole graph is built from a single gst-launch-style description string
// passed to gst.NewPipelineFromString, then the named appsrc/appsink
// elements are looked up and wrapped for programmatic access.
package pipelinegst

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/sickgreg/pixelpilot-go/internal/bufpool"
	"github.com/sickgreg/pixelpilot-go/internal/errs"
	"github.com/sickgreg/pixelpilot-go/internal/source"
)

// playStateTimeout is the "~1 s" bound spec.md §4.7 gives the PLAYING
// transition before it's treated as a graph-state failure.
const playStateTimeout = time.Second

var initOnce sync.Once

// Init initializes the GStreamer library. Safe to call multiple times.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// Graph holds the constructed pipeline and the two named elements the
// rest of the core talks to directly.
type Graph struct {
	Pipeline *gst.Pipeline
	Source   *source.Source
	AppSink  *app.Sink
}

// Options configures the graph's tunable properties, all named in spec.md
// §4.2-§4.4.
type Options struct {
	VideoPT           int
	AppsinkMaxBuffers int
}

// describe builds the gst-launch-style pipeline description of spec.md
// §4.3, matching the five-element Transform Chain plus the AU Sink.
func describe(opts Options) string {
	return fmt.Sprintf(
		`appsrc name=rtpsrc is-live=true format=time do-timestamp=true block=false `+
			`caps="%s" ! `+
			`queue name=headq max-size-buffers=0 max-size-bytes=0 max-size-time=0 leaky=upstream ! `+
			`rtpjitterbuffer name=jbuf latency=10 do-lost=true drop-on-latency=false ! `+
			`rtph265depay name=depay ! `+
			`h265parse name=parser config-interval=-1 disable-passthrough=true ! `+
			`capsfilter name=capsenforce caps="video/x-h265,stream-format=byte-stream,alignment=au" ! `+
			`appsink name=ausink max-buffers=%d drop=true sync=false emit-signals=false`,
		source.Caps(opts.VideoPT), opts.AppsinkMaxBuffers,
	)
}

// Build parses the pipeline description and wraps the named appsrc/appsink
// elements. Any failure here is a graph-build/link failure per spec.md §4.3
// and §4.7.
func Build(opts Options, pool *bufpool.Pool) (*Graph, error) {
	Init()

	desc := describe(opts)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, errs.Wrap(errs.KindGraphBuild, "parse pipeline description: %w", err)
	}

	srcElem, err := pipeline.GetElementByName("rtpsrc")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, errs.Wrap(errs.KindGraphLink, "find rtpsrc element: %w", err)
	}
	src, err := source.Wrap(srcElem, pool)
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, errs.Wrap(errs.KindGraphLink, "wrap rtpsrc: %w", err)
	}

	sinkElem, err := pipeline.GetElementByName("ausink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, errs.Wrap(errs.KindGraphLink, "find ausink element: %w", err)
	}
	appsink := app.SinkFromElement(sinkElem)
	if appsink == nil {
		pipeline.SetState(gst.StateNull)
		return nil, errs.Wrap(errs.KindGraphLink, "ausink element is not an appsink")
	}

	return &Graph{Pipeline: pipeline, Source: src, AppSink: appsink}, nil
}

// Play transitions the graph to PLAYING, matching spec.md §4.7's "waiting
// up to ~1 s for async state change". SetState returning nil only means
// the request was accepted -- on a live pipeline it commonly returns
// StateChangeAsync, reaching PLAYING (or failing) only later. GetState
// blocks for up to playStateTimeout for that async transition to settle,
// the same bounded-wait-on-a-ClockTime idiom busmonitor uses for
// bus.TimedPop, and reports KindGraphState on failure or timeout.
func (g *Graph) Play() error {
	if err := g.Pipeline.SetState(gst.StatePlaying); err != nil {
		return errs.Wrap(errs.KindGraphState, "set PLAYING: %w", err)
	}

	ret, state, _ := g.Pipeline.GetState(gst.ClockTime(playStateTimeout))
	if ret == gst.StateChangeFailure {
		return errs.Wrap(errs.KindGraphState, "PLAYING transition failed")
	}
	if state != gst.StatePlaying {
		return errs.Wrap(errs.KindGraphState, "PLAYING transition did not complete within %s (state=%s)", playStateTimeout, state)
	}
	return nil
}

// Stop transitions the graph to NULL. It does not send EOS; callers that
// want one call Source.EndStream first.
func (g *Graph) Stop() {
	g.Pipeline.SetState(gst.StateNull)
}

// Bus returns the pipeline's message bus, used by the Bus Monitor.
func (g *Graph) Bus() *gst.Bus {
	return g.Pipeline.GetPipelineBus()
}
