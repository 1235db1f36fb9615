package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/gorilla/websocket"
)

// Subscription is a handle to stop delivery and to observe a single
// terminal error.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// PubsubSession is the pubsub half of the chain client: a single
// websocket connection that multiplexes account subscriptions,
// each yielding a lazy, infinite, non-restartable sequence of updates
// until its handle is closed or the connection drops.
//
// The JSON-RPC subscribe envelope and the per-subscription dispatch map
// are written directly against gorilla/websocket. AccountSubscribe's
// public shape is a Subscription (Unsubscribe/Err) plus one chan<- per
// call.
type PubsubSession struct {
	conn   *websocket.Conn
	nextID uint64

	mu             sync.Mutex
	bySubID        map[uint64]chan<- AccountUpdate
	pendingByReqID map[uint64]chan subscribeResult
	closed         bool
	transportErr   chan error

	// writeMu serializes every WriteMessage call. gorilla/websocket
	// allows only one concurrent writer per connection, but
	// AccountSubscribe/Unsubscribe are called from many goroutines at
	// once (one per watched account), so writes need their own lock
	// separate from mu, which guards the dispatch maps.
	writeMu sync.Mutex
}

type subscribeResult struct {
	subID uint64
	err   error
}

// Dial opens the websocket connection used for all subsequent
// subscriptions in this session.
func Dial(ctx context.Context, wssEndpoint string) (*PubsubSession, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wssEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: dial pubsub: %w", err)
	}
	s := &PubsubSession{
		conn:           conn,
		bySubID:        make(map[uint64]chan<- AccountUpdate),
		pendingByReqID: make(map[uint64]chan subscribeResult),
		transportErr:   make(chan error, 1),
	}
	go s.readLoop()
	return s, nil
}

// Close tears down the underlying connection, ending every live
// subscription's stream.
func (s *PubsubSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription uint64          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type wsAccountResult struct {
	Context ContextSlot `json:"context"`
	Value   struct {
		Data json.RawMessage `json:"data"`
	} `json:"value"`
}

func (s *PubsubSession) readLoop() {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				select {
				case s.transportErr <- fmt.Errorf("chain: pubsub transport: %w", err):
				default:
				}
			}
			s.shutdownSubscribers(err)
			return
		}
		s.dispatch(msg)
	}
}

func (s *PubsubSession) shutdownSubscribers(err error) {
	s.mu.Lock()
	subs := s.bySubID
	s.bySubID = make(map[uint64]chan<- AccountUpdate)
	s.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

func (s *PubsubSession) dispatch(msg []byte) {
	// A response to a request (subscribe ack) carries an "id"; a
	// notification carries a "method". Peek at both before deciding.
	var probe struct {
		ID     *uint64 `json:"id"`
		Method string  `json:"method"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return
	}
	if probe.ID != nil {
		s.handleSubscribeAck(*probe.ID, msg)
		return
	}
	if probe.Method == "accountNotification" {
		s.handleAccountNotification(msg)
	}
}

func (s *PubsubSession) handleSubscribeAck(id uint64, msg []byte) {
	var resp struct {
		Result uint64        `json:"result"`
		Error  *jsonrpcError `json:"error"`
	}
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.pendingByReqID[id]
	delete(s.pendingByReqID, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	if resp.Error != nil {
		ch <- subscribeResult{err: resp.Error}
		return
	}
	ch <- subscribeResult{subID: resp.Result}
}

func (s *PubsubSession) handleAccountNotification(msg []byte) {
	var note wsNotification
	if err := json.Unmarshal(msg, &note); err != nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.bySubID[note.Params.Subscription]
	s.mu.Unlock()
	if !ok {
		return
	}
	var result wsAccountResult
	if err := json.Unmarshal(note.Params.Result, &result); err != nil {
		return
	}
	var parsed parsedTokenAccountInfo
	if err := json.Unmarshal(result.Value.Data, &parsed); err != nil {
		// Binary/legacy payload, not jsonParsed; the caller logs and
		// ignores it rather than treating it as an error.
		ch <- AccountUpdate{Slot: result.Context.Slot, Binary: true}
		return
	}
	ch <- AccountUpdate{
		Slot:   result.Context.Slot,
		Mint:   parsed.Parsed.Info.Mint,
		Owner:  parsed.Parsed.Info.Owner,
		Amount: parsed.Parsed.Info.TokenAmount.Amount,
	}
}

type subHandle struct {
	session *PubsubSession
	subID   uint64
	errCh   chan error
}

func (h *subHandle) Unsubscribe() {
	h.session.mu.Lock()
	delete(h.session.bySubID, h.subID)
	h.session.mu.Unlock()
	_ = h.session.sendRequest(context.Background(), "accountUnsubscribe", []interface{}{h.subID}, nil)
}

func (h *subHandle) Err() <-chan error { return h.errCh }

func (s *PubsubSession) sendRequest(ctx context.Context, method string, params []interface{}, ackCh chan subscribeResult) error {
	id := atomic.AddUint64(&s.nextID, 1)
	if ackCh != nil {
		s.mu.Lock()
		s.pendingByReqID[id] = ackCh
		s.mu.Unlock()
	}
	body, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, body)
}

// AccountSubscribe opens a live, per-account subscription at Confirmed
// commitment with jsonParsed encoding. Updates are delivered on ch until
// Unsubscribe is called or the underlying connection drops.
func (s *PubsubSession) AccountSubscribe(ctx context.Context, account coretypes.Pubkey, ch chan<- AccountUpdate) (Subscription, error) {
	ack := make(chan subscribeResult, 1)
	cfg := map[string]interface{}{
		"encoding":   string(EncodingJSONParsed),
		"commitment": string(CommitmentConfirmed),
	}
	if err := s.sendRequest(ctx, "accountSubscribe", []interface{}{account.String(), cfg}, ack); err != nil {
		return nil, fmt.Errorf("chain: account subscribe: %w", err)
	}
	select {
	case res := <-ack:
		if res.err != nil {
			return nil, fmt.Errorf("chain: account subscribe: %w", res.err)
		}
		s.mu.Lock()
		s.bySubID[res.subID] = ch
		s.mu.Unlock()
		return &subHandle{session: s, subID: res.subID, errCh: s.transportErr}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
