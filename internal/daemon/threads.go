package daemon

import (
	"context"
	"fmt"

	"github.com/flicksocial/flick/internal/api"
	"github.com/flicksocial/flick/internal/bus"
	"github.com/flicksocial/flick/internal/gif"
	"github.com/flicksocial/flick/internal/readreceipt"
	"github.com/flicksocial/flick/internal/store"
	"github.com/flicksocial/flick/internal/thread"
	"github.com/flicksocial/flick/internal/transport"
	"go.uber.org/zap"
)

// Threads opens per-conversation synchronizers sharing the daemon's
// connection, cache, and read-receipt coordinator. One synchronizer per
// open thread; the caller closes it when focus leaves.
type Threads struct {
	client   *api.Client
	conn     *transport.Conn
	bus      *bus.Bus
	db       *store.DB
	gifs     *gif.Client
	receipts *readreceipt.Coordinator
	logger   *zap.Logger
	selfID   string
	limit    int
}

// Open creates and opens a synchronizer for the conversation with the
// given peer.
func (t *Threads) Open(ctx context.Context, conversationID, peerID string) (*thread.Synchronizer, error) {
	if conversationID == "" || peerID == "" {
		return nil, fmt.Errorf("conversation and peer ids are required")
	}
	s := thread.New(t.client, t.conn, t.bus, t.db, t.gifs, t.receipts,
		t.logger.With(zap.String("conversation", conversationID)),
		conversationID, t.selfID, peerID, t.limit)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
