package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Channel names are wire-visible; external writers publish to them by
// name.
const (
	ChannelTokenAcctsInsert       = "token_accts_insert_channel"
	ChannelTokenAcctsStatusUpdate = "token_accts_status_update_channel"
	ChannelTransactionsInsert     = "transactions_insert_channel"
)

// TokenAcctInsertPayload is the body of ChannelTokenAcctsInsert.
type TokenAcctInsertPayload struct {
	TokenAcct string `json:"tokenAcct"`
}

// TokenAcctStatusPayload is the body of ChannelTokenAcctsStatusUpdate.
type TokenAcctStatusPayload struct {
	TokenAcct string `json:"tokenAcct"`
	Status    string `json:"status"`
}

// TransactionInsertPayload is the body of ChannelTransactionsInsert.
type TransactionInsertPayload struct {
	TxSig string `json:"txSig"`
}

// Notification is a raw store notification before its payload is typed.
type Notification struct {
	Channel string
	Payload string
}

// Listener owns a dedicated (non-pooled) connection issuing LISTEN for
// the three channels C6 cares about, mirroring the source's separate
// tokio_postgres connection used only for notifications
// (entrypoints/events/setup.rs) rather than borrowing from the pool that
// serves ordinary queries.
type Listener struct {
	conn *pgx.Conn
}

// NewListener opens a dedicated connection and issues LISTEN for all
// three channels.
func NewListener(ctx context.Context, databaseURL string) (*Listener, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: listener connect: %w", err)
	}
	for _, ch := range []string{ChannelTokenAcctsInsert, ChannelTokenAcctsStatusUpdate, ChannelTransactionsInsert} {
		if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", ch)); err != nil {
			conn.Close(ctx)
			return nil, fmt.Errorf("store: listen %s: %w", ch, err)
		}
	}
	return &Listener{conn: conn}, nil
}

// Next blocks until the next notification arrives or ctx is done.
func (l *Listener) Next(ctx context.Context) (Notification, error) {
	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

// Close releases the dedicated connection.
func (l *Listener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}

// DecodeTokenAcctInsert parses a ChannelTokenAcctsInsert payload.
func DecodeTokenAcctInsert(raw string) (TokenAcctInsertPayload, error) {
	var p TokenAcctInsertPayload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

// DecodeTokenAcctStatus parses a ChannelTokenAcctsStatusUpdate payload.
func DecodeTokenAcctStatus(raw string) (TokenAcctStatusPayload, error) {
	var p TokenAcctStatusPayload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

// DecodeTransactionInsert parses a ChannelTransactionsInsert payload.
func DecodeTransactionInsert(raw string) (TransactionInsertPayload, error) {
	var p TransactionInsertPayload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}
