package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/killallgit/normachat/pkg/logger"
	"github.com/sourcegraph/conc"
)

// ErrDispatcherClosed is returned by Submit after Close
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Policy decides what happens to the local change when the remote call fails
type Policy int

const (
	// RollbackOnFailure undoes the local change
	RollbackOnFailure Policy = iota
	// KeepOnFailure leaves the local change in place (fire-and-forget)
	KeepOnFailure
)

// String returns the policy name
func (p Policy) String() string {
	switch p {
	case RollbackOnFailure:
		return "rollback"
	case KeepOnFailure:
		return "keep"
	default:
		return "unknown"
	}
}

// Failure describes a command whose remote call failed
type Failure struct {
	Command    Command
	Err        error
	RolledBack bool
}

// Dispatcher applies commands locally and runs their remote calls in submission order
type Dispatcher struct {
	policy    Policy
	timeout   time.Duration
	onFailure func(Failure)

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	// pending is unbounded so Submit never blocks, even from a failure hook
	mu      sync.Mutex
	pending []job
	wake    chan struct{}
	closed  bool
}

type job struct {
	cmd     Command
	barrier chan struct{}
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithPolicy sets the failure policy
func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithFailureHandler registers a hook invoked on the worker for every failed command
func WithFailureHandler(fn func(Failure)) Option {
	return func(d *Dispatcher) { d.onFailure = fn }
}

// WithTimeout bounds each remote call
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a dispatcher and starts its worker
func NewDispatcher(opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		wake:    make(chan struct{}, 1),
		policy:  RollbackOnFailure,
		timeout: 30 * time.Second,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Go(d.loop)
	return d
}

// Policy returns the configured failure policy
func (d *Dispatcher) Policy() Policy {
	return d.policy
}

// Submit applies cmd locally and queues its remote call
func (d *Dispatcher) Submit(cmd Command) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	cmd.Apply()
	d.pending = append(d.pending, job{cmd: cmd})
	d.mu.Unlock()

	d.signal()
	return nil
}

// Flush blocks until every command submitted before the call has finished
func (d *Dispatcher) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.pending = append(d.pending, job{barrier: barrier})
	d.mu.Unlock()
	d.signal()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs the queued commands and stops the worker
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.signal()

	d.wg.Wait()
	d.cancel()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest job; ok is false once closed and drained
func (d *Dispatcher) next() (job, bool) {
	for {
		d.mu.Lock()
		if len(d.pending) > 0 {
			j := d.pending[0]
			d.pending[0] = job{}
			d.pending = d.pending[1:]
			d.mu.Unlock()
			return j, true
		}
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return job{}, false
		}
		<-d.wake
	}
}

func (d *Dispatcher) loop() {
	for {
		j, ok := d.next()
		if !ok {
			return
		}
		if j.barrier != nil {
			close(j.barrier)
			continue
		}
		d.run(j.cmd)
	}
}

func (d *Dispatcher) run(cmd Command) {
	ctx := d.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := cmd.Execute(ctx)
	if err == nil {
		return
	}

	failure := Failure{
		Command: cmd,
		Err:     fmt.Errorf("%s: %w", cmd.Key(), err),
	}
	if d.policy == RollbackOnFailure {
		cmd.Rollback()
		failure.RolledBack = true
	}

	logger.Warn("optimistic: %v (policy=%s)", failure.Err, d.policy)
	if d.onFailure != nil {
		d.onFailure(failure)
	}
}
