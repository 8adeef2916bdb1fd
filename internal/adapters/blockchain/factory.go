package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

const defaultReceiptPoll = 500 * time.Millisecond

// ClientFactory builds read/write client pairs over JSON-RPC. Building does
// not touch the network.
type ClientFactory struct {
	receiptPoll time.Duration
	httpClient  *http.Client
	log         *slog.Logger
}

// NewClientFactory creates a client factory
func NewClientFactory(cfg *config.RuntimeConfig, log *slog.Logger) *ClientFactory {
	poll := defaultReceiptPoll
	if cfg != nil && cfg.PollInterval > 0 && cfg.PollInterval < poll {
		poll = cfg.PollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &ClientFactory{
		receiptPoll: poll,
		httpClient:  &http.Client{},
		log:         log,
	}
}

// Build creates a client pair for endpointURL. An empty signingKey yields a
// writer that submits through eth_sendTransaction and lets the node sign.
func (f *ClientFactory) Build(endpointURL string, signingKey string) (*usecase.ClientPair, error) {
	if err := validateEndpoint(endpointURL); err != nil {
		return nil, &domain.ConfigurationError{Field: "endpoint", Err: err}
	}

	var (
		key     *ecdsa.PrivateKey
		account *common.Address
	)
	if signingKey != "" {
		var err error
		key, err = ParsePrivateKey(signingKey)
		if err != nil {
			return nil, &domain.ConfigurationError{Field: "signing key", Err: err}
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		account = &addr
	}

	// HTTP transports connect lazily, so this performs no I/O
	rpcClient, err := rpc.DialOptions(context.Background(), endpointURL, rpc.WithHTTPClient(f.httpClient))
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "endpoint", Err: err}
	}
	eth := ethclient.NewClient(rpcClient)

	reader := &Reader{eth: eth, rpc: rpcClient}
	writer := &Writer{
		eth:     eth,
		rpc:     rpcClient,
		key:     key,
		account: account,
		poll:    f.receiptPoll,
		log:     f.log,
	}

	return usecase.NewClientPair(
		domain.NewEndpoint(endpointURL),
		account,
		reader,
		writer,
		&Checkpointer{rpc: rpcClient},
		&CheatClient{rpc: rpcClient},
		closerFunc(func() error {
			rpcClient.Close()
			return nil
		}),
	), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func validateEndpoint(endpointURL string) error {
	if strings.TrimSpace(endpointURL) == "" {
		return errors.New("empty URL")
	}
	u, err := url.Parse(endpointURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q in %s, expected http or https", u.Scheme, endpointURL)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %s", endpointURL)
	}
	return nil
}

// ParsePrivateKey parses a hex secp256k1 key, with or without 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// never echo key material
		return nil, errors.New("not a valid hex-encoded secp256k1 private key")
	}
	return key, nil
}

var _ usecase.ClientFactory = (*ClientFactory)(nil)
