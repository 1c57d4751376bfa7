// Package perf records how long each operation took. It is off unless
// TABGROUPS_PERF=1; TABGROUPS_PERF_SLOW (a duration) keeps only the slower
// entries. Entries are json lines in perf.log under the state dir.
package perf

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/paths"
)

type recorder struct {
	log  zerolog.Logger
	slow time.Duration
}

func newRecorder(w io.Writer, slow time.Duration) *recorder {
	return &recorder{log: zerolog.New(w).With().Timestamp().Logger(), slow: slow}
}

func (r *recorder) record(name, outcome string, elapsed time.Duration) {
	if r == nil || elapsed < r.slow {
		return
	}
	ev := r.log.Info().Str("op", name).Dur("elapsed", elapsed)
	if outcome != "" {
		ev = ev.Str("outcome", outcome)
	}
	ev.Send()
}

var (
	enabled = os.Getenv("TABGROUPS_PERF") == "1"

	initOnce sync.Once
	active   *recorder
)

func current() *recorder {
	initOnce.Do(func() {
		if !enabled {
			return
		}
		if _, err := paths.EnsureStateDir(); err != nil {
			enabled = false
			return
		}
		f, err := logging.OpenFile(paths.StatePath("perf.log"))
		if err != nil {
			enabled = false
			return
		}
		slow, _ := time.ParseDuration(os.Getenv("TABGROUPS_PERF_SLOW"))
		active = newRecorder(f, slow)
	})
	return active
}

// Timer tracks elapsed time for a named operation.
type Timer struct {
	name  string
	start time.Time
	rec   *recorder
}

func Start(name string) *Timer {
	return &Timer{name: name, start: time.Now(), rec: current()}
}

// Stop ends timing and records the result.
func (t *Timer) Stop() time.Duration {
	return t.Done("")
}

// Done is Stop with an outcome, such as "ok" or a rejection kind.
func (t *Timer) Done(outcome string) time.Duration {
	elapsed := time.Since(t.start)
	t.rec.record(t.name, outcome, elapsed)
	return elapsed
}

// Track times fn.
func Track(name string, fn func()) time.Duration {
	t := Start(name)
	fn()
	return t.Stop()
}

func IsEnabled() bool {
	return enabled
}
