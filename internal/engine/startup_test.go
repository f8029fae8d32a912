package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type mockEngine struct {
	isRunning bool
	models    map[string]bool
	pulled    []string
	chats     int
	chatErr   error
	pullErr   error
}

func (m *mockEngine) Name() string { return "mock" }
func (m *mockEngine) Chat(_ context.Context, _ string, _ []Message, _ *Schema) (string, error) {
	m.chats++
	return "pong", m.chatErr
}
func (m *mockEngine) IsRunning(_ context.Context) bool { return m.isRunning }
func (m *mockEngine) ListModels(_ context.Context) ([]string, error) {
	var names []string
	for n := range m.models {
		names = append(names, n)
	}
	return names, nil
}
func (m *mockEngine) HasModel(_ context.Context, name string) bool { return m.models[name] }
func (m *mockEngine) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	if m.pullErr != nil {
		return m.pullErr
	}
	m.pulled = append(m.pulled, name)
	if cb != nil {
		cb(PullProgress{Status: "downloading", Total: 10, Completed: 5})
		cb(PullProgress{Status: "success"})
	}
	return nil
}

func TestEnsureReady_ModelPresent(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{"llama3.1": true}}
	if err := EnsureReady(context.Background(), m, "llama3.1", io.Discard); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
	if m.chats != 1 {
		t.Errorf("warm-up chats = %d, want 1", m.chats)
	}
}

func TestEnsureReady_PullsMissing(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}}
	var out bytes.Buffer
	if err := EnsureReady(context.Background(), m, "llama3.1", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "llama3.1" {
		t.Errorf("expected pull of llama3.1, got %v", m.pulled)
	}
	if !strings.Contains(out.String(), "downloading 50%") {
		t.Errorf("progress output missing: %q", out.String())
	}
}

func TestEnsureReady_PullFails(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}, pullErr: errors.New("disk full")}
	err := EnsureReady(context.Background(), m, "llama3.1", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("error = %v, want pull failure", err)
	}
}

func TestEnsureReady_WarmUpFailureIsNotFatal(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{"llama3.1": true}, chatErr: errors.New("busy")}
	var out bytes.Buffer
	if err := EnsureReady(context.Background(), m, "llama3.1", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !strings.Contains(out.String(), "warm-up failed (non-fatal)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	m := &mockEngine{isRunning: false, models: map[string]bool{}}
	err := EnsureReady(context.Background(), m, "llama3.1", io.Discard)
	if err == nil {
		t.Fatal("expected error when engine is down")
	}
	if !strings.Contains(err.Error(), "mock") {
		t.Errorf("error = %q, want backend name", err)
	}
}
