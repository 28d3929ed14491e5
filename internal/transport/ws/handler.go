package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/zveno/chat-service/internal/config"
	"github.com/zveno/chat-service/internal/infra"
	"github.com/zveno/chat-service/internal/realtime"
)

type Handler struct {
	gateway    Gateway
	upgrader   websocket.Upgrader
	readLimit  int64
	sendBuffer int
	rateLimit  rate.Limit
	rateBurst  int
}

func New(gateway Gateway, cfg config.Gateway) *Handler {
	h := &Handler{
		gateway:    gateway,
		readLimit:  cfg.MaxMessageBytes,
		sendBuffer: cfg.SendBuffer,
		rateLimit:  rate.Inf,
		rateBurst:  cfg.RateBurst,
	}
	if cfg.RateLimit > 0 {
		h.rateLimit = rate.Limit(cfg.RateLimit)
	}
	if h.rateBurst < 1 {
		h.rateBurst = 1
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// ServeHTTP upgrades the request and runs the connection until it closes. The
// credential is read from the "token" query parameter or a bearer header; a
// connection without one must authenticate with an auth event.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("ServeWS")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(fmt.Sprintf("failed to upgrade connection: %v", err))
		return
	}

	client := newClient(conn, h.sendBuffer)
	go client.writePump()

	ctx := r.Context()

	session, err := h.gateway.Connect(ctx, client, credential(r))
	if err != nil {
		logger.Warn(fmt.Sprintf("handshake rejected for %s: %v", r.RemoteAddr, err))
		client.closeWith(CloseUnauthorized, "unauthorized")
		return
	}

	h.readPump(ctx, client, session)
}

func (h *Handler) readPump(ctx context.Context, client *Client, session *realtime.Session) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)

	defer func() {
		h.gateway.Disconnect(ctx, session)
		client.Close()
	}()

	if h.readLimit > 0 {
		client.conn.SetReadLimit(h.readLimit)
	}
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(h.rateLimit, h.rateBurst)

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				client.closeWith(websocket.CloseMessageTooBig, "message too big")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && !client.closed() {
				logger.Warn(fmt.Sprintf("websocket read error for session %s: %v", session.ID(), err))
			}
			return
		}

		if !limiter.Allow() {
			logger.Warn(fmt.Sprintf("rate limit exceeded for session %s; frame dropped", session.ID()))
			continue
		}

		authenticated := session.State() == realtime.StateAuthenticated
		if h.gateway.HandleFrame(ctx, session, raw) {
			if authenticated {
				client.closeWith(websocket.CloseNormalClosure, "bye")
			} else {
				client.closeWith(CloseUnauthorized, "unauthorized")
			}
			return
		}
	}
}

func credential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := infra.BearerToken(r.Header.Get("Authorization"))
	return token
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from one of allowed. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
