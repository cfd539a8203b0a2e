package devicesync

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// pollTimeout bounds one poll iteration.
const pollTimeout = 15 * time.Second

// PollSpec describes what a poller reads and where it delivers the result.
type PollSpec struct {
	// Interval is the base poll period. Zero or negative disables polling.
	Interval time.Duration

	// Value reads the primary value; OnValue receives it.
	Value   func(ctx context.Context) (any, error)
	OnValue func(v any)

	// Target and OnTarget are optional and read a target-state value.
	Target   func(ctx context.Context) (any, error)
	OnTarget func(v any)
}

// Poller periodically runs a PollSpec against an Engine.
type Poller struct {
	engine *Engine
	spec   PollSpec
	period time.Duration

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// StartPolling starts a poller for the spec.
//
// The period is the spec interval plus a random jitter in [0, MaxJitter],
// chosen once per poller so many devices do not poll in lockstep.
//
// Returns:
//   - *Poller: the running poller, or nil when the push channel is enabled,
//     the interval is not positive, or Value is nil
func (e *Engine) StartPolling(spec PollSpec) *Poller {
	if e.opts.PushEnabled || spec.Interval <= 0 || spec.Value == nil {
		return nil
	}

	period := spec.Interval
	if e.opts.MaxJitter > 0 {
		period += rand.N(e.opts.MaxJitter + 1)
	}

	p := &Poller{
		engine: e,
		spec:   spec,
		period: period,
		done:   make(chan struct{}),
	}

	e.pollMu.Lock()
	e.pollers = append(e.pollers, p)
	e.pollMu.Unlock()

	p.wg.Add(1)
	go p.loop()

	return p
}

// Stop halts the poller and waits for the loop to exit. Safe to call more
// than once and on a nil Poller.
func (p *Poller) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Poller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
			p.engine.pollOnce(ctx, p.spec)
			cancel()
		case <-p.done:
			return
		}
	}
}

// pollOnce runs one poll iteration.
//
// It does nothing while a command is executing or within the command
// cooldown. An offline device is not read; once the offline grace period
// has elapsed a recovery check is issued instead. Getter errors are logged
// and swallowed.
func (e *Engine) pollOnce(ctx context.Context, spec PollSpec) {
	now := e.opts.Now()

	e.mu.Lock()
	st := e.state
	e.mu.Unlock()

	if st.CommandInProgress ||
		(!st.LastCommandCompletedAt.IsZero() && now.Sub(st.LastCommandCompletedAt) < e.opts.CommandCooldown) {
		e.logger.Debug("command in progress, skipping poll", "device", e.name)
		return
	}

	if !st.Online {
		if !st.GiveUpAt.IsZero() && now.Sub(st.GiveUpAt) >= e.opts.OfflineGrace {
			e.logger.Info("offline grace elapsed, probing device", "device", e.name)
			e.CheckHealth(ctx)
		}
		return
	}

	v, err := spec.Value(ctx)
	if err != nil {
		e.logger.Warn("poll failure", "device", e.name, "error", err)
	} else if spec.OnValue != nil {
		spec.OnValue(v)
	}

	if spec.Target != nil && spec.OnTarget != nil {
		t, err := spec.Target(ctx)
		if err != nil {
			e.logger.Warn("target poll failure", "device", e.name, "error", err)
			return
		}
		spec.OnTarget(t)
	}
}
