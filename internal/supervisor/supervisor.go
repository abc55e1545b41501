// Package supervisor owns the external monitor process: binary resolution,
// launch environment, lifecycle state and timed shutdown escalation.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunState is the supervisor lifecycle state
type RunState string

const (
	StateIdle     RunState = "idle"
	StateStarting RunState = "starting"
	StateRunning  RunState = "running"
	StateStopping RunState = "stopping"
	StateStopped  RunState = "stopped"
	StateKilled   RunState = "killed"
)

// ResolveBinary locates the monitor binary by checking each search
// directory in order. Release builds are listed before debug builds and the
// working directory.
func ResolveBinary(name string, searchPaths []string) (string, error) {
	for _, dir := range searchPaths {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("monitor binary %q not found in %v (build the project first)", name, searchPaths)
}

// LaunchSpec is the full launch description for the child process. It is
// inspectable in tests without spawning anything; Environ renders it to the
// environment the child actually receives.
type LaunchSpec struct {
	BinaryPath string
	ConfigDir  string
	DataDir    string
	Verbose    bool
}

// Environ returns the child environment: the parent environment plus the
// configuration directory, data directory and diagnostic level.
func (s LaunchSpec) Environ() []string {
	env := os.Environ()
	env = append(env,
		"CONFIG_DIR="+s.ConfigDir,
		"LOG_DATA_DIR="+s.DataDir,
	)
	if s.Verbose {
		env = append(env, "RUST_LOG=info")
	} else {
		env = append(env, "RUST_LOG=warn")
	}
	return env
}

// Supervisor runs one child process through the
// Idle -> Starting -> Running -> Stopping -> Stopped|Killed state machine.
type Supervisor struct {
	spec        LaunchSpec
	stopTimeout time.Duration
	logger      *logrus.Logger

	mu      sync.Mutex
	state   RunState
	cmd     *exec.Cmd
	exitErr error
	done    chan struct{}
}

// New creates a Supervisor in the Idle state
func New(spec LaunchSpec, stopTimeout time.Duration, logger *logrus.Logger) *Supervisor {
	return &Supervisor{
		spec:        spec,
		stopTimeout: stopTimeout,
		logger:      logger,
		state:       StateIdle,
		done:        make(chan struct{}),
	}
}

// Start launches the child process. In verbose mode output passes through
// untouched; otherwise both streams are relayed line-by-line and only
// error/warning lines are re-emitted.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already started (state %s)", s.state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	cmd := exec.Command(s.spec.BinaryPath)
	cmd.Env = s.spec.Environ()

	var relays errgroup.Group
	if s.spec.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			s.setState(StateIdle)
			return fmt.Errorf("failed to open stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			s.setState(StateIdle)
			return fmt.Errorf("failed to open stderr pipe: %w", err)
		}
		relays.Go(func() error {
			return s.relay(stdout)
		})
		relays.Go(func() error {
			return s.relay(stderr)
		})
	}

	if err := cmd.Start(); err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("failed to start monitor process: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"binary": s.spec.BinaryPath,
		"pid":    cmd.Process.Pid,
	}).Info("Monitor process started")

	go func() {
		relays.Wait()
		err := cmd.Wait()

		s.mu.Lock()
		s.exitErr = err
		if s.state == StateRunning {
			// Child exited on its own, clean or crashed
			s.state = StateStopped
		}
		s.mu.Unlock()
		close(s.done)
	}()

	return nil
}

// relay scans a child output stream and re-emits only lines matching
// error/warning markers.
func (s *Supervisor) relay(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "ERROR"):
			s.logger.Errorf("monitor: %s", strings.TrimSpace(line))
		case strings.Contains(line, "WARN"):
			s.logger.Warnf("monitor: %s", strings.TrimSpace(line))
		}
	}
	return nil
}

// Stop requests graceful termination and escalates to SIGKILL when the
// child does not exit within the stop timeout. It returns the terminal
// state: Stopped on a timely exit, Killed after escalation.
func (s *Supervisor) Stop() RunState {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		return state
	}
	s.state = StateStopping
	cmd := s.cmd
	s.mu.Unlock()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warnf("Failed to signal monitor process: %v", err)
	}

	select {
	case <-s.done:
		s.setState(StateStopped)
		s.logger.Info("Monitor process terminated gracefully")
	case <-time.After(s.stopTimeout):
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Warnf("Failed to kill monitor process: %v", err)
		}
		<-s.done
		s.setState(StateKilled)
		s.logger.Warn("Monitor process killed forcefully")
	}

	return s.State()
}

// Done is closed once the child process has exited
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state
func (s *Supervisor) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExitCode reports the child's exit code once Done is closed. A signal
// death reports -1.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitErr == nil {
		return 0
	}
	if exitErr, ok := s.exitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func (s *Supervisor) setState(state RunState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
