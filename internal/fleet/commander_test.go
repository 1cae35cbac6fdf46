package fleet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPCommanderPostsToEndpoints(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	address := strings.TrimPrefix(srv.URL, "http://")
	cmd := NewHTTPCommander()
	ctx := context.Background()

	if err := cmd.Message(ctx, address, []byte(`{"msg":"hi"}`)); err != nil {
		t.Errorf("Message() error = %v", err)
	}
	if err := cmd.Configure(ctx, address, []byte(`{"interval":5}`)); err != nil {
		t.Errorf("Configure() error = %v", err)
	}
	if err := cmd.Restart(ctx, address); err != nil {
		t.Errorf("Restart() error = %v", err)
	}

	want := []string{"/api/message", "/api/configure", "/api/restart"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestHTTPCommanderNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cmd := NewHTTPCommander()
	address := strings.TrimPrefix(srv.URL, "http://")

	if err := cmd.Message(context.Background(), address, nil); err == nil {
		t.Error("Message() error = nil, want failure on 500")
	}
}

func TestHTTPCommanderUnreachable(t *testing.T) {
	cmd := NewHTTPCommander()

	if err := cmd.Message(context.Background(), "127.0.0.1:1", nil); err == nil {
		t.Error("Message() error = nil, want connection failure")
	}
	if err := cmd.Message(context.Background(), "", nil); err == nil {
		t.Error("Message() error = nil, want empty address failure")
	}
}
