package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/arijanluiken/tradescript/internal/engine"
)

// ErrNoExecutors is returned by a pool without actors
var ErrNoExecutors = errors.New("no executors available")

// Pool dispatches requests round-robin over executor actors
type Pool struct {
	engine  *actor.Engine
	pids    []*actor.PID
	timeout time.Duration
	next    *atomic.Uint64
}

// NewPool wraps already spawned executor actors. timeout bounds each
// request and should exceed the script timeout.
func NewPool(e *actor.Engine, pids []*actor.PID, timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pool{
		engine:  e,
		pids:    pids,
		timeout: timeout,
		next:    atomic.NewUint64(0),
	}
}

// Spawn starts n executor actors sharing one engine and run store
func Spawn(e *actor.Engine, n int, eng *engine.Engine, runs RunStore, timeout time.Duration, logger zerolog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	pids := make([]*actor.PID, n)
	for i := range pids {
		name := fmt.Sprintf("executor-%d", i)
		pids[i] = e.Spawn(func() actor.Receiver {
			return New(name, eng, runs, logger.With().Str("actor", name).Logger())
		}, "executor", actor.WithID(fmt.Sprint(i)))
	}
	return NewPool(e, pids, timeout)
}

// Size returns the number of executors
func (p *Pool) Size() int {
	return len(p.pids)
}

// PIDs returns the executor actor PIDs
func (p *Pool) PIDs() []*actor.PID {
	return p.pids
}

// Execute runs a request on the next executor
func (p *Pool) Execute(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	if len(p.pids) == 0 {
		return nil, ErrNoExecutors
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pid := p.pids[(p.next.Inc()-1)%uint64(len(p.pids))]
	res, err := p.engine.Request(pid, ExecuteMsg{Ctx: ctx, Request: req}, p.timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute on %s: %w", pid.ID, err)
	}

	resp, ok := res.(*engine.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected executor reply %T", res)
	}
	return resp, nil
}

// Status collects the status of every executor
func (p *Pool) Status() ([]Status, error) {
	out := make([]Status, 0, len(p.pids))
	for _, pid := range p.pids {
		res, err := p.engine.Request(pid, StatusMsg{}, p.timeout).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get status of %s: %w", pid.ID, err)
		}
		if st, ok := res.(Status); ok {
			out = append(out, st)
		}
	}
	return out, nil
}

// Logs merges the newest log entries of every executor, newest last
func (p *Pool) Logs(limit int) ([]ExecutionLog, error) {
	var out []ExecutionLog
	for _, pid := range p.pids {
		res, err := p.engine.Request(pid, GetLogsMsg{Limit: limit}, p.timeout).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get logs of %s: %w", pid.ID, err)
		}
		if logs, ok := res.(LogsResponseMsg); ok {
			out = append(out, logs.Logs...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Stop stops every executor actor
func (p *Pool) Stop() {
	for _, pid := range p.pids {
		p.engine.Stop(pid)
	}
}
