// Package logview merges the persisted logs of a job's executions with the
// live output of its current run into the text a job-detail view displays.
package logview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kiranshivaraju/cronbat/pkg/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownExecution is returned when selecting a timestamp that is not in
// the execution list.
var ErrUnknownExecution = errors.New("unknown execution")

// NotAvailable is shown when no persisted log exists for the front
// execution. An execution whose log was fetched and is empty displays the
// empty string instead.
const NotAvailable = "No logs available for this execution."

// DefaultConcurrency bounds FetchAll.
const DefaultConcurrency = 4

// Fetcher loads one persisted execution log. It returns (nil, nil) when
// the scheduler has no log for the execution.
type Fetcher interface {
	ExecutionLog(ctx context.Context, jobID, timestamp string) (*models.ExecutionLog, error)
}

// Source says where displayed text came from.
type Source int

const (
	SourceUnavailable Source = iota
	SourcePersisted
	SourceLive
)

func (s Source) String() string {
	switch s {
	case SourcePersisted:
		return "persisted"
	case SourceLive:
		return "live"
	default:
		return "unavailable"
	}
}

// Display is the text to show for a job right now.
type Display struct {
	Text      string
	Source    Source
	Timestamp string
	// Err is the last fetch error for the front execution, if any.
	Err error
}

// Available reports whether Text is real log output.
func (d Display) Available() bool { return d.Source != SourceUnavailable }

// entry is the fetch state of one execution log. Absent logs have no
// entry, so the next read asks again.
type entry struct {
	log     *models.ExecutionLog
	fetched bool
	err     error
}

// Aggregator tracks one job's executions and their fetched logs. Logs are
// keyed by execution timestamp, so fetches completing in any order only
// ever touch their own entry.
type Aggregator struct {
	jobID       string
	fetcher     Fetcher
	concurrency int

	mu         sync.RWMutex
	executions []models.Execution
	logs       map[string]entry
	// gen is bumped by Refresh; a fetch started under an older generation
	// drops its result.
	gen map[string]uint64

	flight singleflight.Group
}

// New creates an Aggregator for jobID. A concurrency below one uses
// DefaultConcurrency.
func New(jobID string, fetcher Fetcher, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Aggregator{
		jobID:       jobID,
		fetcher:     fetcher,
		concurrency: concurrency,
		logs:        make(map[string]entry),
		gen:         make(map[string]uint64),
	}
}

// JobID returns the job the aggregator belongs to.
func (a *Aggregator) JobID() string { return a.jobID }

// SetExecutions replaces the execution list, newest first. Fetched logs of
// executions that are still listed are kept.
func (a *Aggregator) SetExecutions(execs []models.Execution) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executions = append([]models.Execution(nil), execs...)
}

// Executions returns the execution list in display order.
func (a *Aggregator) Executions() []models.Execution {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.Execution(nil), a.executions...)
}

// Log returns the fetched log of timestamp. ok is false until the
// scheduler has returned a log for it.
func (a *Aggregator) Log(timestamp string) (log *models.ExecutionLog, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e := a.logs[timestamp]
	return e.log, e.fetched
}

// Select moves the execution to the front of the list, leaving the order of
// the others untouched, and fetches its log unless already fetched.
func (a *Aggregator) Select(ctx context.Context, timestamp string) error {
	a.mu.Lock()
	idx := -1
	for i, ex := range a.executions {
		if ex.Timestamp == timestamp {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownExecution, timestamp)
	}
	if idx > 0 {
		sel := a.executions[idx]
		copy(a.executions[1:idx+1], a.executions[:idx])
		a.executions[0] = sel
	}
	a.mu.Unlock()

	return a.ensure(ctx, timestamp)
}

// EnsureFront fetches the log of the front execution unless already
// fetched. It is a no-op on an empty list.
func (a *Aggregator) EnsureFront(ctx context.Context) error {
	a.mu.RLock()
	if len(a.executions) == 0 {
		a.mu.RUnlock()
		return nil
	}
	ts := a.executions[0].Timestamp
	a.mu.RUnlock()
	return a.ensure(ctx, ts)
}

// Refresh fetches the log of timestamp even if it was fetched before. It is
// used for the newest execution right after a run completes.
func (a *Aggregator) Refresh(ctx context.Context, timestamp string) error {
	a.mu.Lock()
	a.gen[timestamp]++
	delete(a.logs, timestamp)
	a.flight.Forget(timestamp)
	a.mu.Unlock()
	return a.ensure(ctx, timestamp)
}

// FetchAll fetches the logs of every listed execution not fetched yet, at
// most concurrency at a time. It returns the failures keyed by timestamp;
// one failing execution does not stop the others.
func (a *Aggregator) FetchAll(ctx context.Context) map[string]error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs map[string]error
	)
	g.SetLimit(a.concurrency)

	for _, ex := range a.Executions() {
		ts := ex.Timestamp
		g.Go(func() error {
			if err := a.ensure(ctx, ts); err != nil {
				mu.Lock()
				if errs == nil {
					errs = make(map[string]error)
				}
				errs[ts] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// ensure fetches timestamp's log until one is returned. Concurrent callers
// share a single request; failures and absent logs are recorded but not
// cached, so the next call retries.
func (a *Aggregator) ensure(ctx context.Context, timestamp string) error {
	a.mu.RLock()
	done := a.logs[timestamp].fetched
	a.mu.RUnlock()
	if done {
		return nil
	}

	_, err, _ := a.flight.Do(timestamp, func() (any, error) {
		a.mu.RLock()
		done := a.logs[timestamp].fetched
		gen := a.gen[timestamp]
		a.mu.RUnlock()
		if done {
			return nil, nil
		}

		log, err := a.fetcher.ExecutionLog(ctx, a.jobID, timestamp)

		a.mu.Lock()
		defer a.mu.Unlock()
		if a.gen[timestamp] != gen {
			return nil, nil
		}
		switch {
		case err != nil:
			a.logs[timestamp] = entry{err: err}
			return nil, err
		case log == nil:
			delete(a.logs, timestamp)
		default:
			a.logs[timestamp] = entry{log: log, fetched: true}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("fetch log %s/%s: %w", a.jobID, timestamp, err)
	}
	return nil
}

// Display computes what to show for the job in state with live buffered
// lines. A running job shows only its live lines, whatever persisted
// fetches resolve meanwhile.
func (a *Aggregator) Display(state models.JobState, live []string) Display {
	if state == models.JobStateRunning {
		return Display{Text: strings.Join(live, "\n"), Source: SourceLive}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.executions) == 0 {
		return Display{Text: NotAvailable, Source: SourceUnavailable}
	}
	ts := a.executions[0].Timestamp
	e := a.logs[ts]
	if !e.fetched || e.log == nil {
		return Display{Text: NotAvailable, Source: SourceUnavailable, Timestamp: ts, Err: e.err}
	}
	return Display{Text: e.log.Output, Source: SourcePersisted, Timestamp: ts}
}
