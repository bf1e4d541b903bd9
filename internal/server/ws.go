package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"lookupcore/internal/lookup/audit"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect cross-origin during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsPollInterval = 500 * time.Millisecond
	wsWriteTimeout = 10 * time.Second
)

// HandleExecutionEvents streams the audit rows of one execution as they are
// written. Already-persisted rows are delivered first, then the store is
// polled for new ones until the client disconnects.
// GET /lookup-executions/{id}/events
func (h *Handlers) HandleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads are only needed to observe the close handshake.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	seen := make(map[string]bool)
	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	for {
		records, err := h.stores.Audits.ByExecution(r.Context(), executionID)
		if err != nil {
			log.Warn().Err(err).Str("execution_id", executionID).Msg("audit poll failed")
			return
		}
		for _, rec := range records {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			if err := h.writeEvent(conn, rec); err != nil {
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handlers) writeEvent(conn *websocket.Conn, rec audit.Record) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(rec)
}
