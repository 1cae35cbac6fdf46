package dispatch

import (
	"fmt"
	"sync"
)

// Handler is the callback signature for routed messages.
//
// Handlers are invoked synchronously by Dispatch but outside the
// router's lock, so a handler may safely call back into the router.
//
// Parameters:
//   - topic: The concrete topic the message arrived on
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged by the router but not surfaced to the transport
type Handler func(topic string, payload []byte) error

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry pairs a subscription pattern with its handler, preserving
// registration order for first-match dispatch.
type entry struct {
	pattern string
	handler Handler
}

// Router maps topic patterns to handler callbacks and dispatches
// inbound messages to the first matching handler.
//
// Exact-topic subscriptions are resolved through an O(1) index;
// wildcard patterns are scanned in registration order. Re-subscribing
// a pattern replaces the prior handler in place, keeping its original
// position in the scan order.
//
// All public methods are thread-safe.
type Router struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]int // pattern -> position in entries
	logger  Logger
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		index:  make(map[string]int),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Subscribe registers a handler for a topic pattern. If the pattern is
// already registered, the prior handler is replaced.
func (r *Router) Subscribe(pattern string, handler Handler) error {
	if pattern == "" {
		return ErrEmptyPattern
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pos, ok := r.index[pattern]; ok {
		r.entries[pos].handler = handler
		return nil
	}

	r.index[pattern] = len(r.entries)
	r.entries = append(r.entries, entry{pattern: pattern, handler: handler})
	return nil
}

// Unsubscribe removes a pattern's handler. No-op if the pattern is not
// registered.
func (r *Router) Unsubscribe(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[pattern]
	if !ok {
		return
	}

	r.entries = append(r.entries[:pos], r.entries[pos+1:]...)
	delete(r.index, pattern)
	for p, i := range r.index {
		if i > pos {
			r.index[p] = i - 1
		}
	}
}

// Dispatch routes a message to the first handler whose pattern matches
// the topic. An exact literal match is tried first; otherwise patterns
// are scanned in registration order. Messages matching no pattern are
// logged and dropped.
//
// The handler runs outside the router's lock. A handler panic is
// recovered and logged so one faulty callback cannot take down the
// dispatch path.
func (r *Router) Dispatch(topic string, payload []byte) {
	r.mu.RLock()
	handler := r.lookupLocked(topic)
	logger := r.logger
	r.mu.RUnlock()

	if handler == nil {
		logger.Debug("no handler for topic, message dropped", "topic", topic)
		return
	}

	r.invoke(handler, topic, payload, logger)
}

// lookupLocked finds the handler for a topic. Caller must hold mu.
func (r *Router) lookupLocked(topic string) Handler {
	if pos, ok := r.index[topic]; ok {
		return r.entries[pos].handler
	}
	for _, e := range r.entries {
		if Matches(e.pattern, topic) {
			return e.handler
		}
	}
	return nil
}

// invoke runs a handler with panic recovery.
func (r *Router) invoke(handler Handler, topic string, payload []byte, logger Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic in message handler",
				"topic", topic,
				"panic", fmt.Sprintf("%v", rec),
			)
		}
	}()

	if err := handler(topic, payload); err != nil {
		logger.Warn("message handler error", "topic", topic, "error", err)
	}
}

// Patterns returns the registered patterns in registration order.
// Intended for diagnostics.
func (r *Router) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patterns := make([]string, len(r.entries))
	for i, e := range r.entries {
		patterns[i] = e.pattern
	}
	return patterns
}
