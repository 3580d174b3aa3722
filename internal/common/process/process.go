// File path: internal/common/process/process.go
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicodishanthj/vitaplan/internal/common"
)

// ServiceConfig describes a helper process, such as a local vector store, that the
// CLI supervises for the lifetime of the server.
type ServiceConfig struct {
	Name          string
	Command       string
	Args          []string
	Env           []string
	WorkDir       string
	ReadyURL      string
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	StopTimeout   time.Duration
}

// ManagedService tracks the lifecycle of a launched process.
type ManagedService struct {
	cfg    ServiceConfig
	cmd    *exec.Cmd
	logger zerolog.Logger

	done    chan struct{}
	waitErr error
	mu      sync.RWMutex
}

// Start launches the process, forwards its output into the common logger and
// waits for the readiness probe when one is configured.
func Start(ctx context.Context, cfg ServiceConfig) (*ManagedService, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("process: command required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = filepath.Base(strings.TrimSpace(cfg.Command))
	}
	cfg.Name = name
	logger := common.Logger().With().
		Str("component", "service/"+strings.ReplaceAll(strings.ToLower(name), " ", "_")).
		Str("service", name).
		Logger()
	logger.Info().Str("command", cfg.Command).Strs("args", cfg.Args).Msg("process: launching service")

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.WorkDir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdout pipe %s: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stderr pipe %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", name, err)
	}

	svc := &ManagedService{cfg: cfg, cmd: cmd, logger: logger, done: make(chan struct{})}
	var streams sync.WaitGroup
	streams.Add(2)
	go svc.forward(&streams, stdout, "stdout", zerolog.InfoLevel)
	go svc.forward(&streams, stderr, "stderr", zerolog.WarnLevel)
	go func() {
		// Pipes must be drained before Wait returns.
		streams.Wait()
		err := cmd.Wait()
		svc.mu.Lock()
		svc.waitErr = err
		svc.mu.Unlock()
		close(svc.done)
	}()

	if err := waitForReady(ctx, svc); err != nil {
		_ = svc.Stop(context.Background())
		return nil, err
	}
	logger.Info().Str("url", cfg.ReadyURL).Msg("process: service ready")
	return svc, nil
}

func (s *ManagedService) forward(wg *sync.WaitGroup, pipe io.Reader, stream string, level zerolog.Level) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.logger.WithLevel(level).Str("stream", stream).Msg(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Warn().Str("stream", stream).Err(err).Msg("process: log stream error")
	}
}

// Done is closed once the process has exited.
func (s *ManagedService) Done() <-chan struct{} {
	return s.done
}

// Stop interrupts the process and kills it if it has not exited within the stop
// timeout.
func (s *ManagedService) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.logger.Info().Msg("process: stopping service")
	if s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn().Err(err).Msg("process: interrupt failed")
		}
	}
	stopTimeout := s.cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return s.normalizeWaitErr()
	case <-timer.C:
		s.logger.Warn().Msg("process: forcing service kill")
		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return err
			}
		}
		<-s.done
		return s.normalizeWaitErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitForReady(ctx context.Context, svc *ManagedService) error {
	cfg := svc.cfg
	if strings.TrimSpace(cfg.ReadyURL) == "" {
		return nil
	}
	readyTimeout := cfg.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 30 * time.Second
	}
	interval := cfg.ReadyInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	client := &http.Client{Timeout: 2 * time.Second}
	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-readyCtx.Done():
			if lastErr != nil {
				return fmt.Errorf("process: waiting for %s timed out after %s: %w", cfg.Name, readyTimeout, lastErr)
			}
			return fmt.Errorf("process: waiting for %s timed out after %s: %w", cfg.Name, readyTimeout, readyCtx.Err())
		case <-svc.done:
			return fmt.Errorf("process: %s exited before reporting ready: %v", cfg.Name, svc.waitError())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(readyCtx, http.MethodGet, cfg.ReadyURL, nil)
			if err != nil {
				return fmt.Errorf("process: build readiness request for %s: %w", cfg.Name, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				lastErr = err
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusInternalServerError {
				return nil
			}
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
}

func (s *ManagedService) waitError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitErr
}

func (s *ManagedService) normalizeWaitErr() error {
	err := s.waitError()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		// Terminated by our own interrupt or kill.
		return nil
	}
	return err
}

// BinaryPath resolves an executable using PATH.
func BinaryPath(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("process: binary name required")
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("process: locate %s: %w", name, err)
	}
	return filepath.Clean(path), nil
}
