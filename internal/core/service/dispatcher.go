package service

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/core/domain"
	"modbot/internal/core/port"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

const (
	defaultHandlerTimeout = 2500 * time.Millisecond
	defaultMaxConcurrent  = 16
	defaultLaneBuffer     = 100
	defaultIdleTimeout    = time.Minute
)

type DispatcherParams struct {
	Registry   port.CommandRegistry
	Gate       Authorizer
	Classifier *Classifier
	Responder  *Responder
	Replier    port.Replier
	Deduper    *Deduper
	Cooldowns  *Cooldowns

	// Timeout is the soft deadline after which a running handler is reported as expired.
	Timeout       time.Duration
	MaxConcurrent int64
	LaneBuffer    int
	IdleTimeout   time.Duration
}

type generation struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type task struct {
	event *domain.InvocationEvent
	reg   port.Registration
	gen   *generation
	trace string
}

// Dispatcher routes invocation events to their handlers. Events of one origin run in arrival order on that origin's
// lane, lanes run concurrently up to MaxConcurrent.
type Dispatcher struct {
	registry   port.CommandRegistry
	gate       Authorizer
	classifier *Classifier
	responder  *Responder
	replier    port.Replier
	deduper    *Deduper
	cooldowns  *Cooldowns

	timeout     time.Duration
	laneBuffer  int
	idleTimeout time.Duration

	lanes      map[string]chan *task
	semaphore  *semaphore.Weighted
	generation atomic.Pointer[generation]
	stopped    bool
	wg         sync.WaitGroup
	mu         sync.Mutex
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	if p.Timeout <= 0 {
		p.Timeout = defaultHandlerTimeout
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = defaultMaxConcurrent
	}
	if p.LaneBuffer <= 0 {
		p.LaneBuffer = defaultLaneBuffer
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = defaultIdleTimeout
	}
	if p.Classifier == nil {
		p.Classifier = NewClassifier(nil)
	}

	return &Dispatcher{
		registry:    p.Registry,
		gate:        p.Gate,
		classifier:  p.Classifier,
		responder:   p.Responder,
		replier:     p.Replier,
		deduper:     p.Deduper,
		cooldowns:   p.Cooldowns,
		timeout:     p.Timeout,
		laneBuffer:  p.LaneBuffer,
		idleTimeout: p.IdleTimeout,
		lanes:       make(map[string]chan *task),
		semaphore:   semaphore.NewWeighted(p.MaxConcurrent),
	}
}

// StartGeneration ties subsequently dispatched events to a new connection lifetime derived from ctx.
func (d *Dispatcher) StartGeneration(ctx context.Context) {
	gctx, cancel := context.WithCancel(ctx)
	if old := d.generation.Swap(&generation{ctx: gctx, cancel: cancel}); old != nil {
		old.cancel()
	}
}

// CancelGeneration aborts every queued and running handler of the current connection. Claimed event IDs are kept.
func (d *Dispatcher) CancelGeneration() {
	if old := d.generation.Swap(nil); old != nil {
		old.cancel()
	}
}

// Dispatch accepts an event from the transport. It never blocks on handler execution.
func (d *Dispatcher) Dispatch(event *domain.InvocationEvent) {
	if event == nil {
		return
	}

	l := log.With().
		Str("eventId", event.EventID).
		Str("command", event.CommandName).
		Str("kind", string(event.Kind)).
		Logger()

	reg, ok := d.registry.Lookup(event.Kind, event.CommandName)
	if !ok {
		l.Debug().Msg("no handler registered, ignoring")
		dispatchedEvents.WithLabelValues(string(event.Kind), "unknown").Inc()
		return
	}

	gen := d.generation.Load()
	if gen == nil || gen.ctx.Err() != nil {
		l.Warn().Msg("no active connection, dropping event")
		return
	}

	if event.EventID == "" {
		l.Warn().Msg("event has no id, delivery cannot be deduplicated")
	}

	if d.deduper != nil && !d.deduper.Claim(event.EventID) {
		l.Info().Msg("duplicate delivery, skipping")
		dispatchedEvents.WithLabelValues(string(event.Kind), "duplicate").Inc()
		return
	}

	t := &task{event: event, reg: reg, gen: gen, trace: newTrace()}
	if err := d.enqueue(t); err != nil {
		l.Error().Err(err).Msg("failed to enqueue event")
		if d.deduper != nil {
			d.deduper.Release(event.EventID)
		}
	}
}

// Stop cancels running handlers, closes every lane and waits for the lane workers to exit.
func (d *Dispatcher) Stop() {
	d.CancelGeneration()

	d.mu.Lock()
	d.stopped = true
	for origin, lane := range d.lanes {
		close(lane)
		delete(d.lanes, origin)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) enqueue(t *task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	origin := t.event.OriginID
	lane, exists := d.lanes[origin]
	if !exists {
		lane = make(chan *task, d.laneBuffer)
		d.lanes[origin] = lane
		d.wg.Add(1)
		activeLanes.Inc()
		go d.processLane(origin, lane)
	}

	select {
	case lane <- t:
		return nil
	default:
		return fmt.Errorf("lane full for origin %s", origin)
	}
}

func (d *Dispatcher) processLane(origin string, lane chan *task) {
	defer d.wg.Done()
	defer activeLanes.Dec()

	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case t, ok := <-lane:
			if !ok {
				return
			}
			d.process(t)
			idle.Reset(d.idleTimeout)
		case <-idle.C:
			d.mu.Lock()
			if d.lanes[origin] == lane && len(lane) == 0 {
				delete(d.lanes, origin)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idleTimeout)
		}
	}
}

func (d *Dispatcher) process(t *task) {
	ev := t.event
	ctx := t.gen.ctx
	l := log.With().
		Str("eventId", ev.EventID).
		Str("trace", t.trace).
		Str("command", ev.CommandName).
		Str("kind", string(ev.Kind)).
		Str("originId", ev.OriginID).
		Logger()

	if err := d.semaphore.Acquire(ctx, 1); err != nil {
		l.Debug().Msg("connection ended before execution")
		d.fail(ctx, t, err)
		return
	}
	defer d.semaphore.Release(1)

	if decision := d.gate.Check(ev, t.reg.RequiredTags); !decision.Allowed {
		d.fail(ctx, t, domain.NewCallerLacksPermission(decision.Reason))
		return
	}

	if d.cooldowns != nil {
		key := CooldownKey(ev.Kind, t.reg.Name, ev.Principal.ID)
		if wait, ok := d.cooldowns.Take(key, t.reg.Cooldown); !ok {
			d.fail(ctx, t, domain.NewOnCooldown(wait))
			return
		}
	}

	l.Info().Msg("handling request")
	started := time.Now()
	reply, err := d.execute(ctx, t, l)
	handlerDuration.WithLabelValues(string(ev.Kind), t.reg.Name).Observe(time.Since(started).Seconds())
	if err != nil {
		d.fail(ctx, t, err)
		return
	}

	dispatchedEvents.WithLabelValues(string(ev.Kind), "succeeded").Inc()
	if reply.Text == "" {
		return
	}

	if err := d.replier.Reply(ctx, ev, reply); err != nil {
		l.Error().Err(err).Msg("failed to send reply")
	}
}

type result struct {
	reply domain.Reply
	err   error
}

// execute runs the handler with a soft deadline. A result arriving after the deadline is logged and discarded.
func (d *Dispatcher) execute(ctx context.Context, t *task, l zerolog.Logger) (domain.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("handler panicked: %v", rec)}
			}
		}()

		reply, err := t.reg.Handler.Respond(ctx, t.event)
		done <- result{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		return res.reply, res.err
	case <-ctx.Done():
		go func() {
			res := <-done
			l.Warn().AnErr("lateError", res.err).Msg("discarding late handler result")
		}()
		return domain.Reply{}, ctx.Err()
	}
}

func (d *Dispatcher) fail(ctx context.Context, t *task, err error) {
	record := d.classifier.Classify(err, t.event)
	dispatchedEvents.WithLabelValues(string(t.event.Kind), record.Kind.String()).Inc()

	if d.responder != nil {
		d.responder.Respond(ctx, record, t.event)
	}
}

func newTrace() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}

	return id.String()
}
