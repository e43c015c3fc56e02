// Package ws is the external WebSocket transport for the trade
// subscription contract (spec.md §6). It is deliberately thin: it only
// adapts publisher.TradePublisher subscriptions onto a websocket
// connection, none of the matching logic described in spec.md §1 as "out
// of scope, treated as external collaborators" lives here.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/publisher"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

// Hub upgrades HTTP connections to WebSocket and streams every Trade the
// publisher emits, in emission order, until the client disconnects or is
// dropped per the publisher's overflow policy.
type Hub struct {
	publisher *publisher.TradePublisher
	upgrader  websocket.Upgrader
}

// NewHub constructs a Hub fanning out trades from pub.
func NewHub(pub *publisher.TradePublisher) *Hub {
	return &Hub{
		publisher: pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Trade subscription is read-only market data; any origin may
			// subscribe. Order entry has its own authenticated transport.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and blocks streaming trades to it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}
	defer conn.Close()

	trades, unsubscribe := h.publisher.Subscribe()
	defer unsubscribe()

	// Detect client-initiated close without blocking the write loop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case trade, ok := <-trades:
			if !ok {
				// Disconnected by the publisher's overflow policy.
				return
			}
			if err := h.writeTrade(conn, trade); err != nil {
				log.Warn().Err(err).Msg("ws: write failed, dropping subscriber")
				return
			}
		}
	}
}

func (h *Hub) writeTrade(conn *websocket.Conn, trade common.Trade) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	payload, err := json.Marshal(wireTrade{
		ID:            trade.ID,
		Symbol:        trade.Symbol,
		Price:         trade.Price.String(),
		Quantity:      trade.Quantity.String(),
		MakerOrderID:  trade.MakerOrderID,
		TakerOrderID:  trade.TakerOrderID,
		AggressorSide: trade.AggressorSide.String(),
		Timestamp:     trade.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

type wireTrade struct {
	ID            string `json:"trade_id"`
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	MakerOrderID  string `json:"maker_order_id"`
	TakerOrderID  string `json:"taker_order_id"`
	AggressorSide string `json:"aggressor_side"`
	Timestamp     string `json:"timestamp"`
}
