// Package router fans a login event out to the registered capability agents
// and collects their signals under a shared deadline. Capabilities run
// isolated: none sees another's output, and one failing or stalling never
// blocks the rest.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"riskgate/internal/domain"
)

// Capability is one risk agent. Evaluate returns a signal for the event or
// an error; it must honor ctx cancellation promptly since the router stops
// waiting once the deadline passes.
type Capability interface {
	Name() string
	Evaluate(ctx context.Context, event domain.LoginEvent) (domain.AgentSignal, error)
}

// Router holds the fixed capability table. The table is built during startup
// and read-only afterwards, so Route needs no locking.
type Router struct {
	capabilities []Capability
	names        map[string]struct{}
	logger       *slog.Logger
	metrics      *Metrics
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func New(opts ...Option) *Router {
	r := &Router{
		names:  make(map[string]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a capability to the table. A duplicate name is a wiring bug
// and fails startup rather than silently overriding.
func (r *Router) Register(c Capability) error {
	name := c.Name()
	if name == "" {
		return fmt.Errorf("capability has empty name")
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.capabilities = append(r.capabilities, c)
	return nil
}

// Names returns the registered capability names in registration order.
func (r *Router) Names() []string {
	out := make([]string, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		out = append(out, c.Name())
	}
	return out
}

type result struct {
	name   string
	signal domain.AgentSignal
}

// Route evaluates every registered capability concurrently and returns one
// signal per capability. It never returns an error: a capability that times
// out yields status timed_out, one that errors or panics yields status
// failed, and in both cases risk and confidence stay nil. Late results are
// discarded; the child context tells stragglers to stop.
func (r *Router) Route(ctx context.Context, event domain.LoginEvent, timeout time.Duration) map[string]domain.AgentSignal {
	signals := make(map[string]domain.AgentSignal, len(r.capabilities))
	if len(r.capabilities) == 0 {
		return signals
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered to capacity so stragglers finishing after the deadline never
	// block on send.
	results := make(chan result, len(r.capabilities))
	for _, c := range r.capabilities {
		go r.evaluate(callCtx, c, event, results)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for range r.capabilities {
		select {
		case res := <-results:
			signals[res.name] = res.signal
		case <-deadline.C:
			r.markMissing(event, signals)
			return signals
		case <-ctx.Done():
			r.markMissing(event, signals)
			return signals
		}
	}
	return signals
}

func (r *Router) evaluate(ctx context.Context, c Capability, event domain.LoginEvent, results chan<- result) {
	started := time.Now()
	name := c.Name()

	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.observe(name, string(domain.StatusFailed), time.Since(started))
			r.logger.Error("capability panicked",
				"agent", name,
				"event_id", event.EventID,
				"panic", rec,
			)
			results <- result{name: name, signal: domain.AgentSignal{
				AgentName: name,
				Status:    domain.StatusFailed,
				Err:       fmt.Sprintf("panic: %v", rec),
			}}
		}
	}()

	signal, err := c.Evaluate(ctx, event)
	elapsed := time.Since(started)
	if err != nil {
		status := domain.StatusFailed
		if ctx.Err() != nil {
			status = domain.StatusTimedOut
		}
		r.metrics.observe(name, string(status), elapsed)
		r.logger.Warn("capability evaluation failed",
			"agent", name,
			"event_id", event.EventID,
			"status", status,
			"error", err,
		)
		results <- result{name: name, signal: domain.AgentSignal{
			AgentName: name,
			Status:    status,
			Err:       err.Error(),
		}}
		return
	}

	signal.AgentName = name
	signal.Status = domain.StatusOK
	r.metrics.observe(name, string(domain.StatusOK), elapsed)
	results <- result{name: name, signal: signal}
}

// markMissing fills a timed_out signal for every capability that has not
// reported by the deadline.
func (r *Router) markMissing(event domain.LoginEvent, signals map[string]domain.AgentSignal) {
	for _, c := range r.capabilities {
		name := c.Name()
		if _, ok := signals[name]; ok {
			continue
		}
		r.logger.Warn("capability timed out", "agent", name, "event_id", event.EventID)
		signals[name] = domain.AgentSignal{
			AgentName: name,
			Status:    domain.StatusTimedOut,
			Err:       context.DeadlineExceeded.Error(),
		}
	}
}
