package supervisor

import (
	"testing"
	"time"
)

func TestStartStopLifecycle(t *testing.T) {
	s := New("sleep 60", 50*time.Millisecond, time.Second)

	outcome, err := s.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if outcome != OutcomeStarted {
		t.Fatalf("Start() = %q, want %q", outcome, OutcomeStarted)
	}

	status, pid := s.Status()
	if status != StatusRunning {
		t.Fatalf("Status() = %q, want %q", status, StatusRunning)
	}
	if pid == 0 {
		t.Fatalf("pid = 0, want live process id")
	}

	if got := s.Stop(); got != OutcomeStopped {
		t.Fatalf("Stop() = %q, want %q", got, OutcomeStopped)
	}
	status, pid = s.Status()
	if status != StatusStopped || pid != 0 {
		t.Fatalf("after stop: status = %q pid = %d", status, pid)
	}
}

func TestStartWhenAlreadyRunning(t *testing.T) {
	s := New("sleep 60", 50*time.Millisecond, time.Second)
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	outcome, err := s.Start()
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if outcome != OutcomeAlreadyRunning {
		t.Fatalf("second Start() = %q, want %q", outcome, OutcomeAlreadyRunning)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	s := New("sleep 60", 50*time.Millisecond, time.Second)
	if got := s.Stop(); got != OutcomeNotRunning {
		t.Fatalf("Stop() = %q, want %q", got, OutcomeNotRunning)
	}
	if status, _ := s.Status(); status != StatusStopped {
		t.Fatalf("Status() = %q, want %q", status, StatusStopped)
	}
}

func TestStartDetectsImmediateExit(t *testing.T) {
	s := New("true", 50*time.Millisecond, time.Second)
	if _, err := s.Start(); err == nil {
		t.Fatalf("Start() succeeded for a command that exits immediately")
	}
	if status, _ := s.Status(); status != StatusStopped && status != StatusFailed {
		t.Fatalf("Status() = %q, want stopped or failed", status)
	}
}

func TestStartEmptyCommand(t *testing.T) {
	s := New("", 10*time.Millisecond, time.Second)
	if _, err := s.Start(); err == nil {
		t.Fatalf("Start() succeeded with empty command")
	}
}
