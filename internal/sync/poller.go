// Package sync schedules background ingestion runs, one goroutine per
// mailbox. Mailboxes poll independently; within a mailbox runs are
// strictly sequential so the high-water-mark read and the following
// fetch never race each other.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/printdesk/printdesk/internal/imapx"
	"github.com/printdesk/printdesk/internal/ingest"
	"github.com/printdesk/printdesk/internal/model"
)

// RunState represents the current state of a mailbox polling loop.
type RunState int

const (
	RunIdle RunState = iota
	RunActive
	RunError

	// RunAuthError means the last run failed to authenticate. Retrying
	// on the next tick is pointless until the stored credential changes.
	RunAuthError
)

// Status holds the polling state for a single mailbox.
type Status struct {
	Mailbox string
	State   RunState
	LastRun time.Time
	Error   error
}

// Result is emitted after each completed ingestion run. AuthFailed is
// set when the run failed to authenticate against the IMAP server.
type Result struct {
	Mailbox    string
	Run        model.FetchRun
	Err        error
	AuthFailed bool
}

// runTimeout is the maximum time allowed for a single mailbox run.
const runTimeout = 10 * time.Minute

// Poller orchestrates background polling of configured mailboxes.
type Poller struct {
	engine   *ingest.Engine
	log      *logrus.Logger
	interval time.Duration

	mailboxes []model.Mailbox
	statuses  map[string]*Status
	resultCh  chan Result
	triggers  map[string]chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a Poller over the given mailboxes.
func New(
	engine *ingest.Engine,
	log *logrus.Logger,
	interval time.Duration,
	mailboxes []model.Mailbox,
) *Poller {
	statuses := make(map[string]*Status, len(mailboxes))
	triggers := make(map[string]chan struct{}, len(mailboxes))
	for _, mb := range mailboxes {
		statuses[mb.Name] = &Status{Mailbox: mb.Name, State: RunIdle}
		// Buffered so a trigger while a run is active coalesces into
		// one follow-up run instead of being lost.
		triggers[mb.Name] = make(chan struct{}, 1)
	}

	return &Poller{
		engine:    engine,
		log:       log,
		interval:  interval,
		mailboxes: mailboxes,
		statuses:  statuses,
		resultCh:  make(chan Result, 16),
		triggers:  triggers,
		stopCh:    make(chan struct{}),
	}
}

// Start launches one polling goroutine per mailbox. Each goroutine does
// an immediate first run and then repeats on the configured interval.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for _, mb := range p.mailboxes {
		go p.pollMailbox(mb)
	}
}

// Stop halts all polling goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Results exposes the stream of completed run results.
func (p *Poller) Results() <-chan Result {
	return p.resultCh
}

// TriggerAll requests an immediate poll of every mailbox.
func (p *Poller) TriggerAll() {
	for _, mb := range p.mailboxes {
		p.Trigger(mb.Name)
	}
}

// Trigger requests an immediate poll of a single mailbox by name.
// Unknown names are ignored.
func (p *Poller) Trigger(name string) {
	ch, ok := p.triggers[name]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
		// A trigger is already pending for this mailbox.
	}
}

// Statuses returns the current polling status of all mailboxes.
func (p *Poller) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]Status, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

// pollMailbox runs the polling loop for a single mailbox.
func (p *Poller) pollMailbox(mb model.Mailbox) {
	interval := p.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	trigger := p.triggers[mb.Name]

	// Do an initial fetch immediately.
	p.runOnce(mb)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runOnce(mb)
		case <-trigger:
			p.runOnce(mb)
		}
	}
}

// runOnce performs a single ingestion run and publishes the result.
func (p *Poller) runOnce(mb model.Mailbox) {
	p.setStatus(mb.Name, RunActive, nil)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	run, err := p.engine.RunMailbox(ctx, mb)
	if err != nil {
		if imapx.IsAuthError(err) {
			p.setStatus(mb.Name, RunAuthError, err)
			p.sendResult(Result{Mailbox: mb.Name, Run: run, Err: err, AuthFailed: true})
			return
		}
		p.setStatus(mb.Name, RunError, err)
		p.sendResult(Result{Mailbox: mb.Name, Run: run, Err: err})
		return
	}

	p.setStatus(mb.Name, RunIdle, nil)
	p.sendResult(Result{Mailbox: mb.Name, Run: run})
}

// setStatus updates the polling status for a mailbox.
func (p *Poller) setStatus(name string, state RunState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[name]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == RunIdle && err == nil {
		status.LastRun = time.Now()
	}
}

// sendResult publishes a result without blocking the polling loop.
func (p *Poller) sendResult(result Result) {
	select {
	case p.resultCh <- result:
	default:
		// Drop if nobody is draining results.
		p.log.WithField("mailbox", result.Mailbox).Debug("result channel full, dropping result")
	}
}
