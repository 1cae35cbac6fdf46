package dispatch

import (
	"errors"
	"sync"
	"testing"
)

// recordingHandler returns a Handler that appends its identifier to calls.
func recordingHandler(mu *sync.Mutex, calls *[]string, id string) Handler {
	return func(topic string, payload []byte) error {
		mu.Lock()
		*calls = append(*calls, id)
		mu.Unlock()
		return nil
	}
}

func TestRouterExactMatch(t *testing.T) {
	r := NewRouter()

	var mu sync.Mutex
	var calls []string
	if err := r.Subscribe("devices/42/control", recordingHandler(&mu, &calls, "exact")); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	r.Dispatch("devices/42/control", []byte(`{}`))

	if len(calls) != 1 || calls[0] != "exact" {
		t.Errorf("calls = %v, want [exact]", calls)
	}
}

func TestRouterFirstMatchInRegistrationOrder(t *testing.T) {
	r := NewRouter()

	var mu sync.Mutex
	var calls []string
	r.Subscribe("devices/+/status", recordingHandler(&mu, &calls, "first"))
	r.Subscribe("devices/#", recordingHandler(&mu, &calls, "second"))

	r.Dispatch("devices/42/status", nil)

	if len(calls) != 1 || calls[0] != "first" {
		t.Errorf("calls = %v, want [first]", calls)
	}
}

func TestRouterResubscribeReplacesHandler(t *testing.T) {
	r := NewRouter()

	var mu sync.Mutex
	var calls []string
	r.Subscribe("devices/+/status", recordingHandler(&mu, &calls, "old"))
	r.Subscribe("devices/+/status", recordingHandler(&mu, &calls, "new"))

	r.Dispatch("devices/42/status", nil)

	if len(calls) != 1 || calls[0] != "new" {
		t.Errorf("calls = %v, want [new]", calls)
	}
	if got := len(r.Patterns()); got != 1 {
		t.Errorf("Patterns() length = %d, want 1", got)
	}
}

func TestRouterUnsubscribe(t *testing.T) {
	r := NewRouter()

	var mu sync.Mutex
	var calls []string
	r.Subscribe("a/+", recordingHandler(&mu, &calls, "a"))
	r.Subscribe("b/+", recordingHandler(&mu, &calls, "b"))

	r.Unsubscribe("a/+")
	r.Unsubscribe("a/+") // no-op on absent pattern

	r.Dispatch("a/1", nil)
	r.Dispatch("b/1", nil)

	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("calls = %v, want [b]", calls)
	}
}

func TestRouterUnmatchedTopicDropped(t *testing.T) {
	r := NewRouter()

	invoked := false
	r.Subscribe("devices/+/status", func(string, []byte) error {
		invoked = true
		return nil
	})

	// Must not panic or invoke anything.
	r.Dispatch("sensors/1/reading", nil)

	if invoked {
		t.Error("handler invoked for unmatched topic")
	}
}

func TestRouterRecoversHandlerPanic(t *testing.T) {
	r := NewRouter()
	r.Subscribe("boom/#", func(string, []byte) error {
		panic("handler exploded")
	})

	// Must not propagate the panic.
	r.Dispatch("boom/now", nil)
}

func TestRouterHandlerErrorNotSurfaced(t *testing.T) {
	r := NewRouter()
	r.Subscribe("x", func(string, []byte) error {
		return errors.New("handler failure")
	})

	// Dispatch has no error return; this just must not panic.
	r.Dispatch("x", nil)
}

func TestRouterSubscribeValidation(t *testing.T) {
	r := NewRouter()

	if err := r.Subscribe("", func(string, []byte) error { return nil }); !errors.Is(err, ErrEmptyPattern) {
		t.Errorf("Subscribe(empty) error = %v, want ErrEmptyPattern", err)
	}
	if err := r.Subscribe("x", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrNilHandler", err)
	}
}
