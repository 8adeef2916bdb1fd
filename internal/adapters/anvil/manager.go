package anvil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

const (
	// DefaultAnvilPort is the port the fork node listens on
	DefaultAnvilPort = 8546
	DefaultName      = "fork"

	defaultReadyTimeout = 30 * time.Second
	stopGrace           = 5 * time.Second
	logFollowInterval   = 250 * time.Millisecond
)

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Manager runs anvil as a detached child process tracked by a PID file
type Manager struct {
	bin          string
	httpClient   *http.Client
	readyTimeout time.Duration
	log          *slog.Logger
}

// NewManager creates a new anvil manager
func NewManager(cfg *config.RuntimeConfig, log *slog.Logger) *Manager {
	bin := "anvil"
	if cfg != nil && cfg.AnvilBin != "" {
		bin = cfg.AnvilBin
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		bin:          bin,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		readyTimeout: defaultReadyTimeout,
		log:          log,
	}
}

// Start launches anvil and waits until its RPC answers
func (m *Manager) Start(ctx context.Context, instance *domain.AnvilInstance) error {
	m.setFilePaths(instance)

	if pid, ok := m.alivePID(instance); ok {
		return fmt.Errorf("anvil instance %s is already running (PID %d)", instance.Name, pid)
	}

	logFile, err := os.Create(instance.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	// not bound to ctx: the node outlives the request that started it
	cmd := exec.Command(m.bin, buildAnvilArgs(instance)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start anvil: %w", err)
	}

	if err := writePidFile(instance.PidFile, cmd.Process.Pid); err != nil {
		_ = cmd.Process.Kill()
		logFile.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		logFile.Close()
		close(exited)
	}()

	m.log.Info("anvil started", "name", instance.Name, "pid", cmd.Process.Pid, "port", instance.Port, "fork_url", redactURL(instance.ForkURL))

	if err := m.waitReady(ctx, instance, exited); err != nil {
		_ = cmd.Process.Kill()
		_ = os.Remove(instance.PidFile)
		return fmt.Errorf("%w%s", err, logTail(instance.LogFile))
	}
	return nil
}

// Stop terminates the instance, escalating to SIGKILL after a grace period
func (m *Manager) Stop(ctx context.Context, instance *domain.AnvilInstance) error {
	m.setFilePaths(instance)

	pid, ok := m.alivePID(instance)
	if !ok {
		if err := os.Remove(instance.PidFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove PID file: %w", err)
		}
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err := process.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
	}

	deadline := time.Now().Add(stopGrace)
	for processAlive(pid) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			_ = process.Kill()
			deadline = time.Now()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if processAlive(pid) {
		m.log.Warn("anvil ignored SIGTERM, killing", "pid", pid)
		_ = process.Kill()
	}

	if err := os.Remove(instance.PidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	m.log.Info("anvil stopped", "name", instance.Name, "pid", pid)
	return nil
}

// GetStatus reports whether the process is alive and its RPC answers
func (m *Manager) GetStatus(ctx context.Context, instance *domain.AnvilInstance) (*domain.AnvilStatus, error) {
	m.setFilePaths(instance)

	status := &domain.AnvilStatus{LogFile: instance.LogFile}
	pid, ok := m.alivePID(instance)
	if !ok {
		return status, nil
	}

	status.Running = true
	status.PID = pid
	status.RPCURL = instance.RPCURL()
	if err := m.checkRPCHealth(ctx, status.RPCURL); err != nil {
		status.Error = err.Error()
	} else {
		status.RPCHealthy = true
	}
	return status, nil
}

// StreamLogs copies the log file to writer and follows it until ctx ends
func (m *Manager) StreamLogs(ctx context.Context, instance *domain.AnvilInstance, writer io.Writer) error {
	m.setFilePaths(instance)

	f, err := os.Open(instance.LogFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("log file does not exist: %s", instance.LogFile)
		}
		return err
	}
	defer f.Close()

	ticker := time.NewTicker(logFollowInterval)
	defer ticker.Stop()
	for {
		if _, err := io.Copy(writer, f); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Manager) setFilePaths(instance *domain.AnvilInstance) {
	if instance.Name == "" {
		instance.Name = DefaultName
	}
	if instance.Port == 0 {
		instance.Port = DefaultAnvilPort
	}
	if instance.PidFile == "" {
		instance.PidFile = filepath.Join(os.TempDir(), "chasm-"+instance.Name+".pid")
	}
	if instance.LogFile == "" {
		instance.LogFile = filepath.Join(os.TempDir(), "chasm-"+instance.Name+".log")
	}
}

func (m *Manager) alivePID(instance *domain.AnvilInstance) (int, bool) {
	pid, err := readPidFile(instance.PidFile)
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

func (m *Manager) waitReady(ctx context.Context, instance *domain.AnvilInstance, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, m.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := m.checkRPCHealth(ctx, instance.RPCURL()); err == nil {
			return nil
		}
		select {
		case <-exited:
			return errors.New("anvil exited before its RPC became ready")
		case <-ctx.Done():
			return fmt.Errorf("anvil RPC not ready on port %d: %w", instance.Port, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) checkRPCHealth(ctx context.Context, url string) error {
	_, err := m.rpcCall(ctx, url, "eth_blockNumber")
	return err
}

func (m *Manager) rpcCall(ctx context.Context, url, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{Jsonrpc: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", httpResp.StatusCode)
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error: %s", resp.Error.Message)
	}
	return resp.Result, nil
}

// buildAnvilArgs builds the anvil command line for an instance
func buildAnvilArgs(instance *domain.AnvilInstance) []string {
	args := []string{"--port", strconv.Itoa(instance.Port), "--host", domain.LocalHost}
	if instance.ForkURL != "" {
		args = append(args, "--fork-url", instance.ForkURL)
		if instance.ForkBlock != nil {
			args = append(args, "--fork-block-number", strconv.FormatUint(*instance.ForkBlock, 10))
		}
	}
	return args
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", string(data))
	}
	return pid, nil
}

func writePidFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// logTail returns the last lines of the log file, formatted for an error message
func logTail(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return "\nanvil output:\n  " + strings.Join(lines, "\n  ")
}

// redactURL hides the path and query of an RPC URL, which often carry API keys
func redactURL(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		if j := strings.IndexByte(raw[i+3:], '/'); j >= 0 {
			return raw[:i+3+j] + "/***"
		}
	}
	return raw
}

var _ usecase.AnvilManager = (*Manager)(nil)
