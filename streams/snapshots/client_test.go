package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/arb-engine-go/snapshot"
	"github.com/defistate/arb-engine-go/tokens"
)

// --- Test Setup: Mock RPC Server ---

type MockSnapshotFeed struct {
	events chan *FeedEvent
	t      *testing.T
}

func SetupMockSnapshotFeed(ctx context.Context, t *testing.T, port int, events []*FeedEvent) (<-chan error, error) {
	eventChan := make(chan *FeedEvent, len(events))
	for _, e := range events {
		eventChan <- e
	}
	close(eventChan)

	api := &MockSnapshotFeed{events: eventChan, t: t}
	server := rpc.NewServer()
	if err := server.RegisterName("arb", api); err != nil {
		return nil, fmt.Errorf("failed to register API: %v", err)
	}

	wsHandler := server.WebsocketHandler([]string{"*"})
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: wsHandler}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	go func() {
		<-ctx.Done()
		server.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	return errChan, nil
}

func (api *MockSnapshotFeed) SubscribeSnapshots(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		for event := range api.events {
			select {
			case <-rpcSub.Err():
				return
			default:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.t.Logf("Error notifying subscriber: %v", err)
					return
				}
			}
		}
	}()
	return rpcSub, nil
}

// --- Test Helpers & Data Generation ---

func testLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeSnapshot(block uint64) *snapshot.Snapshot {
	usdc := common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth := common.HexToAddress("0x2222222222222222222222222222222222222222")
	return &snapshot.Snapshot{
		Block: block,
		Tokens: []tokens.Token{
			{Address: usdc, Symbol: "USDC", Decimals: 6},
			{Address: weth, Symbol: "WETH", Decimals: 18},
		},
		Pairs: []snapshot.V2Pair{{
			Address:  common.BytesToAddress([]byte{0x01}),
			Venue:    "uniswap-v2",
			Token0:   usdc,
			Token1:   weth,
			Reserve0: big.NewInt(3_000_000e6),
			Reserve1: new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
			FeeBps:   30,
		}},
		Assets: []snapshot.BorrowableAsset{{
			Address:            usdc,
			Symbol:             "USDC",
			Decimals:           6,
			AvailableLiquidity: big.NewInt(2e12),
			FlashFeeBps:        9,
			PriceUsd:           1,
		}},
		Gas: snapshot.GasQuote{
			GasPriceWei:    big.NewInt(1e9),
			AssetPerWeiNum: big.NewInt(3000e6),
			AssetPerWeiDen: big.NewInt(1e18),
		},
	}
}

func snapshotEvent(t *testing.T, block uint64) *FeedEvent {
	t.Helper()
	payload, err := json.Marshal(makeSnapshot(block))
	require.NoError(t, err)
	return &FeedEvent{Type: "snapshot", Payload: payload, SentAt: time.Now().UnixNano()}
}

func mustRaw(t *testing.T, event *FeedEvent) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

// --- Processor Tests ---

func TestProcessor_PublishesValidSnapshots(t *testing.T) {
	p := NewProcessor(testLogger(), 4)

	require.NoError(t, p.ProcessMessage(mustRaw(t, snapshotEvent(t, 100))))
	require.NoError(t, p.ProcessMessage(mustRaw(t, snapshotEvent(t, 101))))

	snap := <-p.Snapshots()
	assert.Equal(t, uint64(100), snap.Block)
	require.Len(t, snap.Pairs, 1)
	assert.Equal(t, "3000000000000", snap.Pairs[0].Reserve0.String())

	snap = <-p.Snapshots()
	assert.Equal(t, uint64(101), snap.Block)
}

func TestProcessor_DropsStaleBlocks(t *testing.T) {
	p := NewProcessor(testLogger(), 4)

	require.NoError(t, p.ProcessMessage(mustRaw(t, snapshotEvent(t, 100))))
	// A replayed tip is dropped silently, not an error.
	require.NoError(t, p.ProcessMessage(mustRaw(t, snapshotEvent(t, 100))))
	require.NoError(t, p.ProcessMessage(mustRaw(t, snapshotEvent(t, 99))))
	require.NoError(t, p.ProcessMessage(mustRaw(t, snapshotEvent(t, 102))))

	assert.Equal(t, uint64(100), (<-p.Snapshots()).Block)
	assert.Equal(t, uint64(102), (<-p.Snapshots()).Block)
	assert.Empty(t, p.Snapshots())
}

func TestProcessor_RejectsMalformedMessages(t *testing.T) {
	p := NewProcessor(testLogger(), 4)

	assert.Error(t, p.ProcessMessage(json.RawMessage(`not json`)))
	assert.Error(t, p.ProcessMessage(mustRaw(t, &FeedEvent{Type: "diff", Payload: json.RawMessage(`{}`)})))
	assert.Error(t, p.ProcessMessage(mustRaw(t, &FeedEvent{Type: "snapshot", Payload: json.RawMessage(`{"block":"nope"}`)})))

	// Structurally valid JSON whose snapshot fails validation.
	bad := makeSnapshot(103)
	bad.Gas.GasPriceWei = nil
	payload, err := json.Marshal(bad)
	require.NoError(t, err)
	assert.Error(t, p.ProcessMessage(mustRaw(t, &FeedEvent{Type: "snapshot", Payload: payload})))

	assert.Empty(t, p.Snapshots())
}

// --- Client Tests ---

func TestClient_SuccessfulSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := SetupMockSnapshotFeed(ctx, t, 9978, []*FeedEvent{snapshotEvent(t, 200)})
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:        "ws://localhost:9978",
		Logger:     testLogger(),
		BufferSize: 10,
	})
	require.NoError(t, err)

	select {
	case snap := <-client.Snapshots():
		assert.Equal(t, uint64(200), snap.Block)
		assert.Len(t, snap.Assets, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestClient_ConfigValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, Config{Logger: testLogger(), BufferSize: 1})
	assert.Error(t, err)

	_, err = NewClient(ctx, Config{URL: "ws://localhost:1", BufferSize: 1})
	assert.Error(t, err)

	_, err = NewClient(ctx, Config{URL: "ws://localhost:1", Logger: testLogger()})
	assert.Error(t, err)
}
