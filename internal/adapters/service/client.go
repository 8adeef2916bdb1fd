package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// traces can take a while on mainnet forks
const defaultTimeout = 2 * time.Minute

// Client talks to a remote chasm backend (`chasm serve`) over HTTP. It
// implements both the fork lifecycle and trace service ports.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With("component", "ServiceClient"),
	}
}

// NewClientFromConfig returns nil when no service URL is configured
func NewClientFromConfig(cfg *config.RuntimeConfig, log *slog.Logger) *Client {
	if cfg == nil || cfg.ServiceURL == "" {
		return nil
	}
	return NewClient(cfg.ServiceURL, log)
}

// Status fetches the fork session status
func (c *Client) Status(ctx context.Context) (*domain.ForkSession, error) {
	var session domain.ForkSession
	if err := c.do(ctx, http.MethodGet, "/fork/status", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Start asks the service to fork source, replacing any running fork
func (c *Client) Start(ctx context.Context, source domain.Endpoint) error {
	req := domain.ForkStartRequest{RPCURL: source.URL, BlockNumber: source.PinnedBlock}
	return c.do(ctx, http.MethodPost, "/fork/start", req, nil)
}

// Stop asks the service to stop the fork
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/fork/stop", struct{}{}, nil)
}

// TraceByHash requests a replay trace of a mined transaction
func (c *Client) TraceByHash(ctx context.Context, hash common.Hash, rpcURL string) (*domain.TraceResponse, error) {
	path := "/trace/" + hash.Hex()
	if rpcURL != "" {
		path += "?" + url.Values{"rpc_url": {rpcURL}}.Encode()
	}
	var resp domain.TraceResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TraceByCall requests a simulated trace of a call
func (c *Client) TraceByCall(ctx context.Context, req domain.TraceCallRequest, flavor domain.TraceFlavor) (*domain.TraceResponse, error) {
	var path string
	switch flavor {
	case domain.TraceCallTree, "":
		path = "/trace/calltree"
	case domain.TraceDebug:
		path = "/trace/call"
	default:
		return nil, fmt.Errorf("unknown trace flavor %q", flavor)
	}

	var resp domain.TraceResponse
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("service request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("service %s unreachable: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, eb.Error)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

var (
	_ usecase.ForkService  = (*Client)(nil)
	_ usecase.TraceService = (*Client)(nil)
)
