package progress

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jrsteele09/go-credential-pool/batch"
	"github.com/rs/zerolog"
)

var (
	_ batch.Reporter = (*LogReporter)(nil)
	_ batch.Reporter = (*TextReporter)(nil)
	_ batch.Reporter = Multi(nil)
)

// LogReporter writes each snapshot as one structured log event
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(_ context.Context, s batch.Snapshot) {
	event := r.logger.Info()
	if !s.Final {
		event = r.logger.Debug()
	}
	event.
		Str("run_id", s.RunID).
		Str("kind", string(s.Kind)).
		Str("progress", SnapshotBar(s)).
		Int("processed", s.Processed).
		Int("total", s.Total).
		Int("succeeded", s.Succeeded).
		Int("failed", s.Failed).
		Int("remaining", s.Remaining()).
		Strs("recent", s.Recent).
		Str("elapsed", Elapsed(s.Elapsed)).
		Bool("final", s.Final).
		Msg("batch progress")
}

// TextReporter renders human readable progress lines, the terminal
// equivalent of a live-updating status message.
type TextReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (r *TextReporter) Report(_ context.Context, s batch.Snapshot) {
	var sb strings.Builder
	switch s.Kind {
	case batch.KindEnroll:
		fmt.Fprintf(&sb, "pull    %s  tries %d  added %d  failed %d", SnapshotBar(s), s.Processed, s.Succeeded, s.Failed)
	default:
		fmt.Fprintf(&sb, "refresh %s  success %d  failed %d  remaining %d", SnapshotBar(s), s.Succeeded, s.Failed, s.Remaining())
	}
	fmt.Fprintf(&sb, "  elapsed %s\n", Elapsed(s.Elapsed))

	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.w, sb.String())
}

// Multi fans a snapshot out to every reporter in order
type Multi []batch.Reporter

func (m Multi) Report(ctx context.Context, s batch.Snapshot) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, s)
		}
	}
}
