package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/equicurve/internal/core"
	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// DeliveryFunc observes the outcome of each delivery.
type DeliveryFunc func(notifier, status string)

type subscription struct {
	n      Notifier
	events map[string]bool // nil means all events
}

func (s subscription) wants(eventType string) bool {
	return s.events == nil || s.events[eventType]
}

// Registry manages notifier instances
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]subscription
	logger    *zap.Logger
	observe   DeliveryFunc
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewRegistry creates a new notifier registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		notifiers: make(map[string]subscription),
		logger:    logger,
		timeout:   defaultSendTimeout,
	}
}

// OnDelivery installs a delivery observer, typically a metrics recorder.
func (r *Registry) OnDelivery(fn DeliveryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observe = fn
}

// Register adds a notifier subscribed to the given event types.
// No event types subscribes it to everything.
func (r *Registry) Register(n Notifier, events ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := n.Name()
	if _, exists := r.notifiers[name]; exists {
		return fmt.Errorf("notifier %s already registered", name)
	}

	sub := subscription{n: n}
	if len(events) > 0 {
		sub.events = make(map[string]bool, len(events))
		for _, e := range events {
			sub.events[e] = true
		}
	}
	r.notifiers[name] = sub
	return nil
}

// Get retrieves a notifier by name
func (r *Registry) Get(name string) (Notifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, exists := r.notifiers[name]
	if !exists {
		return nil, fmt.Errorf("notifier %s not found", name)
	}
	return sub.n, nil
}

// Len returns the number of registered notifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

// NotifyAll delivers ev to every subscribed notifier and returns the
// failures keyed by notifier name.
func (r *Registry) NotifyAll(ctx context.Context, ev Event) map[string]error {
	r.mu.RLock()
	subs := make([]subscription, 0, len(r.notifiers))
	for _, sub := range r.notifiers {
		if sub.wants(ev.Type) {
			subs = append(subs, sub)
		}
	}
	observe := r.observe
	r.mu.RUnlock()

	errs := make(map[string]error)
	for _, sub := range subs {
		name := sub.n.Name()
		status := "ok"
		if err := sub.n.Send(ctx, ev); err != nil {
			errs[name] = core.WrapError(core.ErrNotifierFailed, err)
			status = "error"
		}
		if observe != nil {
			observe(name, status)
		}
	}
	return errs
}

// Publish delivers ev in the background. Failures are logged and never
// reach the caller.
func (r *Registry) Publish(ev Event) {
	if r.Len() == 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		for name, err := range r.NotifyAll(ctx, ev) {
			r.logger.Warn("notification failed",
				zap.String("notifier", name),
				zap.String("event", ev.Type),
				zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight Publish deliveries finish.
func (r *Registry) Wait() {
	r.wg.Wait()
}
