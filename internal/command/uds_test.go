package command

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"icc.tech/pktbridge/internal/engine"
)

type fakeStats struct{}

func (fakeStats) Snapshot() engine.Snapshot {
	return engine.Snapshot{Generation: 7, Rules: 2}
}

type fakeReloader struct {
	calls int
	err   error
}

func (r *fakeReloader) Reload() error {
	r.calls++
	return r.err
}

func startServer(t *testing.T, reloader *fakeReloader) (*UDSClient, *Handler) {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "control.sock")
	handler := NewHandler(fakeStats{}, reloader)
	server := NewUDSServer(socket, handler)

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return NewUDSClient(socket, time.Second), handler
}

func TestPing(t *testing.T) {
	client, _ := startServer(t, &fakeReloader{})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	client, _ := startServer(t, &fakeReloader{})

	resp, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Unexpected result type: %T", resp.Result)
	}
	if result["ruleset_generation"].(float64) != 7 {
		t.Errorf("Expected generation 7, got %v", result["ruleset_generation"])
	}
}

func TestReload(t *testing.T) {
	reloader := &fakeReloader{}
	client, _ := startServer(t, reloader)

	resp, err := client.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if reloader.calls != 1 {
		t.Errorf("Expected 1 reload call, got %d", reloader.calls)
	}
}

func TestReloadFailureReported(t *testing.T) {
	reloader := &fakeReloader{err: errors.New("rule 2: invalid src_cidr")}
	client, _ := startServer(t, reloader)

	resp, err := client.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload call failed: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeInternalError {
		t.Errorf("Expected internal error, got %+v", resp.Error)
	}
}

func TestStatus(t *testing.T) {
	client, _ := startServer(t, &fakeReloader{})

	resp, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	result := resp.Result.(map[string]interface{})
	if result["running"] != true {
		t.Errorf("Expected running=true, got %v", result["running"])
	}
	if result["rules_loaded"].(float64) != 2 {
		t.Errorf("Expected 2 rules loaded, got %v", result["rules_loaded"])
	}
}

func TestUnknownMethod(t *testing.T) {
	client, _ := startServer(t, &fakeReloader{})

	resp, err := client.Call(context.Background(), "selfdestruct", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("Expected method-not-found, got %+v", resp.Error)
	}
}

func TestShutdown(t *testing.T) {
	client, handler := startServer(t, &fakeReloader{})

	called := make(chan struct{})
	handler.SetShutdownFunc(func() { close(called) })

	resp, err := client.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("Shutdown callback never invoked")
	}
}

func TestClientAgainstDeadSocket(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("Expected error against missing socket")
	}
}
