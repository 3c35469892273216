// Package source implements the Streaming Source of spec.md §4.2: a thin
// wrapper around a go-gst appsrc, exposing the pending-bytes level the
// ingress back-pressure gate needs. The appsrc itself is configured by the
// pipeline description in internal/pipelinegst (live, do-timestamp,
// time format, non-blocking push); no leak type is set on it, so appsrc
// keeps its default of not leaking queued buffers.
package source

import (
	"fmt"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/sickgreg/pixelpilot-go/internal/bufpool"
)

// Source wraps a GstAppSrc element named "rtpsrc" inside a larger pipeline.
// It holds the buffer pool so Push can release ownership back to it
// immediately after copying into a GStreamer buffer.
type Source struct {
	appsrc *app.Source
	pool   *bufpool.Pool
}

// Wrap adapts an already-constructed appsrc element (looked up by the
// pipeline builder) into a Source.
func Wrap(elem *gst.Element, pool *bufpool.Pool) (*Source, error) {
	src := app.SrcFromElement(elem)
	if src == nil {
		return nil, fmt.Errorf("element is not an appsrc")
	}
	return &Source{appsrc: src, pool: pool}, nil
}

// PendingBytes returns the GstAppSrc current-level-bytes property: the
// number of bytes currently queued inside appsrc awaiting consumption by
// the rest of the pipeline. This is the "queue-level metric" spec.md §2
// asks the Streaming Source to expose.
func (s *Source) PendingBytes() int64 {
	v, err := s.appsrc.GetProperty("current-level-bytes")
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case uint64:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	default:
		return 0
	}
}

// Push hands a streaming buffer to appsrc. Ownership of b transfers
// unconditionally: b is copied into a new GStreamer buffer and released to
// the pool immediately, matching the "leak upstream" push semantics of
// spec.md §9 (the producer never retains or re-touches a pushed buffer).
func (s *Source) Push(b *bufpool.Buffer) error {
	defer s.pool.Release(b)

	data := make([]byte, b.Size)
	copy(data, b.Data[:b.Size])
	gbuf := gst.NewBufferFromBytes(data)

	ret := s.appsrc.PushBuffer(gbuf)
	if ret != gst.FlowOK {
		return fmt.Errorf("appsrc push: %v", ret)
	}
	return nil
}

// EndStream signals end-of-stream on the appsrc.
func (s *Source) EndStream() {
	s.appsrc.EndStream()
}

// Caps builds the RTP/H.265 caps string of spec.md §4.2 for a given
// payload type.
func Caps(videoPT int) string {
	return fmt.Sprintf(
		"application/x-rtp,media=video,encoding-name=H265,clock-rate=90000,payload=%d",
		videoPT,
	)
}
