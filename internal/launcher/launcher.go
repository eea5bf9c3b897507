// Package launcher enforces the whole-run wall-clock budget ("timeout" in
// the run config) around a trace or replay session. Earlier revisions of
// this project drove GDB through an embedded Python script and could
// escalate a stuck session with SIGTERM/SIGKILL against the child process
// directly (see the sibling dontbug project's subprocess-launch pattern).
// This rewrite drives GDB/MI straight from the calling process instead
// (internal/adapter.MI), which does not expose the underlying gdb PID, so
// escalation here is cooperative: it asks the adapter to quit and gives it
// one grace period to do so before giving up and reporting the timeout.
package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// gracePeriod is how long RunWithTimeout waits for a cooperative Quit to
// take effect before returning the timeout error regardless.
const gracePeriod = time.Second

// RunWithTimeout runs work to completion, unless timeout elapses first (a
// non-positive timeout means no limit) or ctx is cancelled — in either case
// it calls quit once and waits up to gracePeriod for work to return before
// reporting the timeout.
func RunWithTimeout(ctx context.Context, timeout time.Duration, quit func() error, work func() error, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan error, 1)
	g.Go(func() error {
		done <- work()
		return nil
	})

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case err := <-done:
		g.Wait()
		return err
	case <-timeoutC:
		log.Warn("run exceeded its configured timeout, asking the debugger to quit")
		return escalate(done, quit, timeout, log)
	case <-gctx.Done():
		return escalate(done, quit, timeout, log)
	}
}

func escalate(done chan error, quit func() error, timeout time.Duration, log *logrus.Entry) error {
	if err := quit(); err != nil {
		log.WithError(err).Warn("cooperative quit failed")
	}
	select {
	case <-done:
		return fmt.Errorf("run exceeded timeout of %s", timeout)
	case <-time.After(gracePeriod):
		return fmt.Errorf("run exceeded timeout of %s and did not quit cooperatively", timeout)
	}
}
