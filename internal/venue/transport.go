package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

const (
	pingInterval = 50 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
)

// TransportConfig bundles the tunables for the push-with-polling-fallback
// transport.
type TransportConfig struct {
	PushConnectTimeout   time.Duration // bounded window before falling back to polling
	PollFallbackInterval time.Duration
	MaxReconnectWait     time.Duration
}

// DefaultTransportConfig matches the resolved defaults.
var DefaultTransportConfig = TransportConfig{
	PushConnectTimeout:   5 * time.Second,
	PollFallbackInterval: 10 * time.Second,
	MaxReconnectWait:     30 * time.Second,
}

// Subscription lets a caller stop receiving delta updates for a market.
type Subscription interface {
	Unsubscribe()
}

// marketSub is one market's registration with the Transport.
type marketSub struct {
	marketID string
	onDeltas func([]types.BookDelta)
	onResync func()

	usingPush bool
	stopPoll  chan struct{}

	pollMu   sync.Mutex
	lastSeen map[string]types.MakerOrder
	pollSeq  int64
}

type subscription struct {
	t        *Transport
	marketID string
}

func (s *subscription) Unsubscribe() {
	s.t.unsubscribe(s.marketID)
}

// Transport implements push-with-polling-fallback delta delivery over a
// single multiplexed websocket connection plus a per-market REST poll loop
// used whenever the push connection is unavailable within
// PushConnectTimeout.
type Transport struct {
	wsURL  string
	client *Client
	cfg    TransportConfig
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
	up     bool

	subsMu sync.Mutex
	subs   map[string]*marketSub
}

func NewTransport(wsURL string, client *Client, cfg TransportConfig, logger *slog.Logger) *Transport {
	return &Transport{
		wsURL:  wsURL,
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "venue.transport"),
		subs:   make(map[string]*marketSub),
	}
}

// FetchSnapshot delegates to the REST client.
func (t *Transport) FetchSnapshot(ctx context.Context, marketID string) ([]types.MakerOrder, error) {
	return t.client.FetchSnapshot(ctx, marketID)
}

// Run maintains the push connection for the transport's lifetime,
// reconnecting with exponential backoff and re-subscribing every registered
// market on each reconnect. Blocks until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = t.cfg.MaxReconnectWait
	b.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}
		err := t.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		t.logger.Warn("push connection dropped, reconnecting", "err", err, "wait", wait)
		t.setUp(false)
		t.fallbackAllToPoll()

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (t *Transport) setUp(up bool) {
	t.connMu.Lock()
	t.up = up
	t.connMu.Unlock()
}

func (t *Transport) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.PushConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, t.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.up = true
	t.connMu.Unlock()

	defer func() {
		t.connMu.Lock()
		conn.Close()
		t.conn = nil
		t.connMu.Unlock()
	}()

	if err := t.resubscribeAll(); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}
	t.resyncAll()
	t.logger.Info("push connection established")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go t.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		t.dispatch(msg)
	}
}

func (t *Transport) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *Transport) dispatch(raw []byte) {
	var env wireWSEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.logger.Warn("malformed push message, dropping", "err", err)
		return
	}

	t.subsMu.Lock()
	sub, ok := t.subs[env.MarketID]
	t.subsMu.Unlock()
	if !ok {
		return
	}

	switch env.EventType {
	case "snapshot":
		sub.onResync()
	case "delta":
		deltas := make([]types.BookDelta, 0, len(env.Deltas))
		for _, wd := range env.Deltas {
			o, err := fromWireOrder(wd.Order)
			if err != nil {
				t.logger.Warn("dropping malformed push delta", "market_id", env.MarketID, "err", err)
				continue
			}
			deltas = append(deltas, types.BookDelta{
				Order:      o,
				Status:     types.DeltaStatus(wd.Status),
				UpdateTime: wd.UpdateTime,
			})
		}
		if len(deltas) > 0 {
			sub.onDeltas(deltas)
		}
	}
}

func (t *Transport) resubscribeAll() error {
	t.subsMu.Lock()
	ids := make([]string, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	t.subsMu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("no active connection")
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(struct {
		Operation string   `json:"operation"`
		MarketIDs []string `json:"marketIds"`
	}{Operation: "subscribe", MarketIDs: ids})
}

func (t *Transport) resyncAll() {
	t.subsMu.Lock()
	subs := make([]*marketSub, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
		s.usingPush = true
		if s.stopPoll != nil {
			close(s.stopPoll)
			s.stopPoll = nil
		}
	}
	t.subsMu.Unlock()
	for _, s := range subs {
		s.onResync()
	}
}

func (t *Transport) fallbackAllToPoll() {
	t.subsMu.Lock()
	subs := make([]*marketSub, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.subsMu.Unlock()
	for _, s := range subs {
		t.startPollIfNeeded(s)
	}
}

// Subscribe registers a market for delta delivery. onDeltas is called with
// each batch of ACTIVE/INACTIVE deltas; onResync is called whenever the
// transport needs the caller to refetch a fresh snapshot (on push
// (re)connect, and on a push "snapshot" event). The poll loop does not call it.
func (t *Transport) Subscribe(ctx context.Context, marketID string, onDeltas func([]types.BookDelta), onResync func()) (Subscription, error) {
	sub := &marketSub{
		marketID: marketID,
		onDeltas: onDeltas,
		onResync: onResync,
		lastSeen: make(map[string]types.MakerOrder),
	}

	t.subsMu.Lock()
	t.subs[marketID] = sub
	t.subsMu.Unlock()

	t.connMu.Lock()
	pushUp := t.up
	conn := t.conn
	t.connMu.Unlock()

	if pushUp && conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(struct {
			Operation string   `json:"operation"`
			MarketIDs []string `json:"marketIds"`
		}{Operation: "subscribe", MarketIDs: []string{marketID}}); err != nil {
			t.logger.Warn("push subscribe failed, falling back to poll", "market_id", marketID, "err", err)
			t.startPollIfNeeded(sub)
		} else {
			sub.usingPush = true
		}
	} else {
		t.startPollIfNeeded(sub)
	}

	return &subscription{t: t, marketID: marketID}, nil
}

func (t *Transport) startPollIfNeeded(sub *marketSub) {
	t.subsMu.Lock()
	if sub.usingPush || sub.stopPoll != nil {
		t.subsMu.Unlock()
		return
	}
	sub.stopPoll = make(chan struct{})
	stop := sub.stopPoll
	t.subsMu.Unlock()

	go t.pollLoop(sub, stop)
}

func (t *Transport) pollLoop(sub *marketSub, stop chan struct{}) {
	ticker := time.NewTicker(t.cfg.PollFallbackInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			orders, err := t.client.FetchSnapshot(ctx, sub.marketID)
			if err != nil {
				t.logger.Warn("poll fallback fetch failed", "market_id", sub.marketID, "err", err)
				continue
			}
			t.emitPollDiff(sub, orders)
		}
	}
}

// emitPollDiff synthesizes ACTIVE/INACTIVE deltas from successive polled
// snapshots: any order present now that wasn't, or whose fields changed, is
// an ACTIVE delta; any order present before but absent now is INACTIVE.
func (t *Transport) emitPollDiff(sub *marketSub, orders []types.MakerOrder) {
	sub.pollMu.Lock()
	defer sub.pollMu.Unlock()

	sub.pollSeq++
	seq := sub.pollSeq

	seen := make(map[string]types.MakerOrder, len(orders))
	var deltas []types.BookDelta

	for _, o := range orders {
		seen[o.ID] = o
		prev, existed := sub.lastSeen[o.ID]
		if !existed || !sameOrder(prev, o) {
			deltas = append(deltas, types.BookDelta{Order: o, Status: types.StatusActive, UpdateTime: seq})
		}
	}
	for id, prev := range sub.lastSeen {
		if _, stillThere := seen[id]; !stillThere {
			deltas = append(deltas, types.BookDelta{Order: prev, Status: types.StatusInactive, UpdateTime: seq})
		}
	}

	sub.lastSeen = seen
	if len(deltas) > 0 {
		sub.onDeltas(deltas)
	}
}

func sameOrder(a, b types.MakerOrder) bool {
	return a.FilledStake.Cmp(b.FilledStake) == 0 &&
		a.TotalStake.Cmp(b.TotalStake) == 0 &&
		a.MakerOdds.Cmp(b.MakerOdds) == 0 &&
		a.MakerSideIsA == b.MakerSideIsA
}

func (t *Transport) unsubscribe(marketID string) {
	t.subsMu.Lock()
	sub, ok := t.subs[marketID]
	if ok {
		delete(t.subs, marketID)
	}
	t.subsMu.Unlock()
	if !ok {
		return
	}

	if sub.stopPoll != nil {
		close(sub.stopPoll)
	}

	t.connMu.Lock()
	conn := t.conn
	up := t.up
	t.connMu.Unlock()
	if up && conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteJSON(struct {
			Operation string   `json:"operation"`
			MarketIDs []string `json:"marketIds"`
		}{Operation: "unsubscribe", MarketIDs: []string{marketID}})
	}
}
