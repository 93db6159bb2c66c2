package server

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStopIsIdempotent(t *testing.T) {
	s := &Server{
		socketPath: filepath.Join(t.TempDir(), "strata.sock"),
		done:       make(chan struct{}),
	}

	// A shutdown command and the signal handler may both call Stop; the
	// second call must not panic on the closed done channel.
	if err := s.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("Wait would not unblock after Stop")
	}
}
