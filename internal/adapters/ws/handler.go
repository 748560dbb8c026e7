package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/okian/huddle/internal/fanout"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// Registrar is the slice of the engine the transport needs: joining and
// leaving broadcast domains.
type Registrar interface {
	RegisterSubscriber(ctx context.Context, gameID string, sub fanout.Subscriber) error
	UnregisterSubscriber(ctx context.Context, gameID, subID string)
	AttachLiveFeed(ctx context.Context, sub fanout.Subscriber)
	DetachLiveFeed(ctx context.Context, subID string)
}

// Handler upgrades /ws/live requests and wires the resulting clients into
// the fanout layer. With a ?gid= query parameter the client joins that
// session's domain; without one it joins the global live feed.
type Handler struct {
	reg      Registrar
	log      logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler over the engine.
func NewHandler(reg Registrar, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Get().Named("ws")
	}
	return &Handler{
		reg: reg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth and origin policy are out of scope; accept all.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the websocket endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/live", h.ServeHTTP)
}

// ServeHTTP upgrades one request and serves it until the peer leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.RecordHTTPRequest("/ws/live", r.Method, "400")
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	metrics.RecordHTTPRequest("/ws/live", r.Method, "101")

	// Detach from the request context: the subscription outlives the
	// upgrade request.
	ctx := context.Background()
	client := NewClient(conn, h.log)
	gid := r.URL.Query().Get("gid")

	if gid != "" {
		if err := h.reg.RegisterSubscriber(ctx, gid, client); err != nil {
			h.log.Warn(ctx, "session subscription rejected",
				logger.String("gid", gid),
				logger.Error(err))
			_ = client.Close()
			return
		}
	} else {
		h.reg.AttachLiveFeed(ctx, client)
	}

	go client.writePump(ctx)
	client.readPump(ctx)

	if gid != "" {
		h.reg.UnregisterSubscriber(ctx, gid, client.ID())
	} else {
		h.reg.DetachLiveFeed(ctx, client.ID())
	}
}
