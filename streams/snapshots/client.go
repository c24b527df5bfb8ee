// Package snapshots subscribes to a chain-state feed and turns raw messages
// into validated snapshots ready for scanning. The networking wrapper
// reconnects with exponential backoff; the processor is pure logic and
// usable on its own against recorded messages.
package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/arb-engine-go/snapshot"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the feed is registered.
	RpcNamespace               = "arb"
	SnapshotSubscriptionMethod = "subscribeSnapshots"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// FeedEvent is the wrapper object received from the server.
type FeedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// Processor parses feed events, enforces block ordering, and broadcasts
// validated snapshots. It is decoupled from the networking layer.
type Processor struct {
	lastBlock  uint64
	snapshotCh chan *snapshot.Snapshot
	logger     Logger
}

func NewProcessor(logger Logger, bufferSize uint) *Processor {
	return &Processor{
		logger:     logger,
		snapshotCh: make(chan *snapshot.Snapshot, bufferSize),
	}
}

// Snapshots returns a read-only channel for receiving new snapshots.
func (p *Processor) Snapshots() <-chan *snapshot.Snapshot {
	return p.snapshotCh
}

// ProcessMessage accepts a raw feed message, validates the contained
// snapshot, and publishes it. Stale blocks are dropped, not errors: a
// reconnect can legitimately replay the tip.
func (p *Processor) ProcessMessage(rawData json.RawMessage) error {
	start := time.Now()

	var event FeedEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal feed event: %w", err)
	}
	if event.Type != "snapshot" {
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(event.Payload, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot for block %d is unusable: %w", snap.Block, err)
	}

	if p.lastBlock != 0 && snap.Block <= p.lastBlock {
		p.logger.Warn("Received stale snapshot, discarding.",
			"last_known_block", p.lastBlock,
			"snapshot_block", snap.Block,
		)
		return nil
	}
	p.lastBlock = snap.Block

	p.logger.Debug("Snapshot processed",
		"block", snap.Block,
		"pairs", len(snap.Pairs),
		"pools", len(snap.Pools),
		"assets", len(snap.Assets),
		"latency_proc_ms", time.Since(start).Milliseconds(),
		"latency_transport_ms", time.Since(time.Unix(0, event.SentAt)).Milliseconds(),
	)

	p.snapshotCh <- &snap
	return nil
}

// Client manages the connection and uses Processor for logic.
type Client struct {
	processor *Processor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Snapshots delegates to the processor's channel.
func (c *Client) Snapshots() <-chan *snapshot.Snapshot {
	return c.processor.Snapshots()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to snapshot feed", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to snapshot feed, will retry...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to snapshot feed.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, SnapshotSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for snapshots...")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}
