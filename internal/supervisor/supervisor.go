package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Status is the coarse agent process state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// StartOutcome reports what Start did.
type StartOutcome string

const (
	OutcomeStarted        StartOutcome = "started"
	OutcomeAlreadyRunning StartOutcome = "already_running"
)

// StopOutcome reports what Stop did.
type StopOutcome string

const (
	OutcomeStopped    StopOutcome = "stopped"
	OutcomeNotRunning StopOutcome = "not_running"
)

var ErrEmptyCommand = errors.New("supervisor: agent command is empty")

// Supervisor runs the voice agent as a single child OS process. At most one
// process is tracked at a time; external death is only noticed lazily on the
// next Start or Status call.
type Supervisor struct {
	mu          sync.Mutex
	argv        []string
	settleDelay time.Duration
	stopTimeout time.Duration

	proc   *process
	status Status
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func New(command string, settleDelay, stopTimeout time.Duration) *Supervisor {
	if settleDelay <= 0 {
		settleDelay = 2 * time.Second
	}
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Supervisor{
		argv:        strings.Fields(command),
		settleDelay: settleDelay,
		stopTimeout: stopTimeout,
		status:      StatusStopped,
	}
}

// Start spawns the agent process unless one is already alive. After the
// settle delay the process is re-polled: still alive means running, dead
// means the start failed.
func (s *Supervisor) Start() (StartOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil && s.proc.alive() {
		return OutcomeAlreadyRunning, nil
	}
	if len(s.argv) == 0 {
		s.status = StatusFailed
		return "", ErrEmptyCommand
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		s.status = StatusFailed
		return "", fmt.Errorf("start agent: %w", err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	s.proc = p
	s.status = StatusStarting

	time.Sleep(s.settleDelay)

	if !p.alive() {
		s.status = StatusFailed
		return "", errors.New("agent exited during startup")
	}
	s.status = StatusRunning
	return OutcomeStarted, nil
}

// Stop terminates the agent if it is alive: interrupt first, then kill after
// the stop timeout. When the agent is not running the status is normalized
// to stopped.
func (s *Supervisor) Stop() StopOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil || !s.proc.alive() {
		s.status = StatusStopped
		return OutcomeNotRunning
	}

	p := s.proc
	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-p.done:
	case <-time.After(s.stopTimeout):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	s.status = StatusStopped
	return OutcomeStopped
}

// Status recomputes the state from process liveness. The returned pid is
// zero when no process is alive.
func (s *Supervisor) Status() (Status, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return s.status, 0
	}
	if s.proc.alive() {
		if s.status != StatusStarting {
			s.status = StatusRunning
		}
		return s.status, s.proc.cmd.Process.Pid
	}
	s.status = StatusStopped
	return s.status, 0
}
