package suite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/codec"
	"github.com/samaelod/netprobe/engine"
	"github.com/samaelod/netprobe/types"
)

const (
	NoSuiteLine   = "Must select a suite before running! "
	OpenErrorLine = "Error opening test file! "

	defaultDelay   = 100 * time.Millisecond
	defaultMaxWait = 5000 * time.Millisecond
	pollInterval   = 5 * time.Millisecond
)

var ErrNoSuite = errors.New("no test suite selected")

// Sender transmits one payload on every send-enabled endpoint.
type Sender interface {
	SendMessage(payload []byte) engine.SendResult
}

// ReceiveLog is the received-message log a run clears and reads back.
type ReceiveLog interface {
	Lines() []string
	Reset()
	Seq() uint64
}

// StatusLine receives the run's failure messages.
type StatusLine interface {
	Set(msg string)
}

// Report is the outcome of one run.
type Report struct {
	Lines    []string
	Passed   bool
	Sent     int
	Expected int
	Received int
}

// Runner replays suites. Each line is sent, then the runner waits Delay and
// afterwards until the receive log has been quiet for Settle (never longer
// than MaxWait), so every response to a line is in before the next is sent.
type Runner struct {
	Sender Sender
	Recv   ReceiveLog
	Status StatusLine

	Delay   time.Duration
	Settle  time.Duration
	MaxWait time.Duration

	// Prefixes are stripped from received lines before comparing.
	Prefixes []string

	// Progress, when set, gets 0..100 as lines are sent.
	Progress func(percent int)
}

// NewRunner wires a runner to an engine with the given pacing.
func NewRunner(e *engine.Engine, delay, settle time.Duration) *Runner {
	return &Runner{
		Sender:   e,
		Recv:     e.Recv,
		Status:   e.Status,
		Delay:    delay,
		Settle:   settle,
		MaxWait:  e.Timeout(),
		Prefixes: DefaultPrefixes(),
	}
}

// DefaultPrefixes are the display prefixes of every role.
func DefaultPrefixes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, role := range types.Roles {
		p := role.String() + ": "
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Run loads the suite at path and executes it. Nothing is cleared when the
// path is empty or the file cannot be read.
func (r *Runner) Run(ctx context.Context, path string) (*Report, error) {
	if path == "" {
		return &Report{Lines: []string{NoSuiteLine}}, ErrNoSuite
	}

	script, err := Load(path)
	if err != nil {
		if r.Status != nil {
			r.Status.Set(OpenErrorLine)
		}
		logrus.WithFields(logrus.Fields{
			"component": "suite",
			"path":      path,
		}).WithError(err).Warn("Failed to open test suite")
		return nil, fmt.Errorf("open suite %s: %w", path, err)
	}

	return r.Execute(ctx, script)
}

// Execute replays script and compares the received log with its
// expectations.
func (r *Runner) Execute(ctx context.Context, script *types.Script) (*Report, error) {
	r.Recv.Reset()
	r.progress(0)

	total := len(script.Sends)
	for i, line := range script.Sends {
		payload := []byte(line)
		if !script.Raw {
			payload = codec.EncodeText(line)
		}
		res := r.Sender.SendMessage(payload)
		if err := res.Err(); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "suite",
				"line":      i,
			}).WithError(err).Debug("Send incomplete")
		}

		r.progress(100 * (i + 1) / total)

		if err := r.settle(ctx); err != nil {
			return nil, err
		}
	}

	actual := r.Recv.Lines()
	lines := Compare(script.Expects, actual, r.Prefixes)

	return &Report{
		Lines:    lines,
		Passed:   len(lines) == 1 && lines[0] == PassedLine,
		Sent:     total,
		Expected: len(script.Expects),
		Received: len(actual),
	}, nil
}

func (r *Runner) progress(p int) {
	if r.Progress != nil {
		r.Progress(p)
	}
}

// settle waits out the per-line delay, then for the receive log to stay
// unchanged for Settle.
func (r *Runner) settle(ctx context.Context) error {
	delay := r.Delay
	if delay < 0 {
		delay = defaultDelay
	}
	if err := sleep(ctx, delay); err != nil {
		return err
	}
	if r.Settle <= 0 {
		return nil
	}

	maxWait := r.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	deadline := time.Now().Add(maxWait)

	last := r.Recv.Seq()
	quietSince := time.Now()
	for time.Since(quietSince) < r.Settle && time.Now().Before(deadline) {
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
		if s := r.Recv.Seq(); s != last {
			last = s
			quietSince = time.Now()
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
