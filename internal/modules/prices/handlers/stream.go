package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/utils"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// PriceUpdate is one frame pushed over the price stream
type PriceUpdate struct {
	Prices    map[string]float64 `json:"prices"`
	Timestamp string             `json:"timestamp"`
}

// HandlePriceStream handles GET /api/prices/stream?symbols=A,B (websocket).
// Prices are pushed immediately and then on every stream interval until the client disconnects.
func (h *Handler) HandlePriceStream(w http.ResponseWriter, r *http.Request) {
	symbols := utils.ParseSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		http.Error(w, "symbols query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Client messages are ignored; CloseRead cancels ctx once the peer goes away
	ctx := conn.CloseRead(r.Context())

	h.log.Debug().Strs("symbols", symbols).Msg("Price stream opened")

	if err := h.pushPrices(ctx, conn, symbols); err != nil {
		h.logStreamEnd(err)
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := h.pushPrices(ctx, conn, symbols); err != nil {
				h.logStreamEnd(err)
				return
			}
		}
	}
}

func (h *Handler) pushPrices(ctx context.Context, conn *websocket.Conn, symbols []string) error {
	update := PriceUpdate{
		Prices:    h.service.GetMultiplePrices(ctx, symbols),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, update)
}

func (h *Handler) logStreamEnd(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
		h.log.Debug().Msg("Price stream closed by client")
		return
	}
	h.log.Warn().Err(err).Msg("Price stream write failed")
}
