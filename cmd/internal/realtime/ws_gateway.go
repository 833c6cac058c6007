package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"lobby/cmd/identity/ids"
	"lobby/cmd/internal/auth/session"
	"lobby/cmd/internal/keylock"
	"lobby/cmd/internal/metrics"
	"lobby/cmd/internal/presence"
	"lobby/cmd/security/signedcookie"
	v1 "lobby/shared/contracts/presence/v1"

	"github.com/coder/websocket"
)

const (
	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
)

// Authenticator verifies access credentials presented at the handshake.
type Authenticator interface {
	VerifyAccess(raw string, now time.Time) (session.AccessClaims, error)
}

// Gateway is the presence websocket entrypoint.
//
// A request moves through Handshake -> Authenticated -> Active -> Closed. Authentication
// happens before the upgrade; failures get a bare 401 and never reach the registry.
type Gateway struct {
	log      *slog.Logger
	cfg      GatewayConfig
	auth     Authenticator
	blocks   BlockStore
	registry *presence.Registry[*Client]
	metrics  *metrics.Metrics
	now      func() time.Time

	// transitions orders each user's register/unregister with the broadcast it causes,
	// so observers never see a stale offline after a reconnect's online.
	transitions keylock.Map

	originPatterns []string
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMetrics records handshake, connection and fan-out metrics.
func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithRegistry shares an existing presence registry.
func WithRegistry(r *presence.Registry[*Client]) GatewayOption {
	return func(g *Gateway) { g.registry = r }
}

// WithNow overrides the clock used for credential checks and envelope timestamps.
func WithNow(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// NewGateway constructs a gateway. It fails when no cookie secret is configured.
func NewGateway(log *slog.Logger, cfg GatewayConfig, auth Authenticator, blocks BlockStore, opts ...GatewayOption) (*Gateway, error) {
	if cfg.CookieSecret == "" {
		return nil, errors.New("realtime: cookie secret required")
	}
	if auth == nil || blocks == nil {
		return nil, errors.New("realtime: authenticator and block store required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "accessToken"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = wsDefaultWriteTimeout
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = heartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = heartbeatTimeout
	}

	g := &Gateway{
		log:    log,
		cfg:    cfg,
		auth:   auth,
		blocks: blocks,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registry == nil {
		g.registry = presence.NewRegistry[*Client]()
	}
	g.originPatterns = originPatterns(cfg.AllowedOrigins)
	return g, nil
}

// Registry exposes the presence registry backing this gateway.
func (g *Gateway) Registry() *presence.Registry[*Client] { return g.registry }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// authenticate reads the signed access cookie from the raw header and verifies the JWT inside.
func (g *Gateway) authenticate(r *http.Request) (session.AccessClaims, error) {
	raw, ok := signedcookie.FromHeader(r.Header.Get("Cookie"), g.cfg.CookieName, g.cfg.CookieSecret)
	if !ok {
		return session.AccessClaims{}, errors.New("missing or forged access cookie")
	}
	return g.auth.VerifyAccess(raw, g.now())
}

// HandleWS authenticates, upgrades and runs one presence connection until it closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		g.metrics.Handshake("origin")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	claims, err := g.authenticate(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		g.metrics.Handshake("unauthenticated")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		g.metrics.Handshake("error")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	connID, err := ids.NewULID(g.now())
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	client := NewClient(connID, claims.UserID, claims.Username, g.cfg.SendQueueSize)
	log := g.log.With("conn_id", client.ID, "user_id", client.UserID)

	g.metrics.Handshake("ok")
	g.metrics.ConnOpened()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	unlock := g.transitions.Lock(client.UserID)
	g.registry.Register(client.UserID, client)
	g.metrics.SetOnlineUsers(g.registry.Len())
	log.Info("ws.open", "online_users", g.registry.Len())

	bctx, bcancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	g.broadcast(bctx, client, v1.TypeOnline)
	bcancel()
	unlock()

	if err := g.sendSnapshot(ctx, client); err != nil {
		log.Error("presence.snapshot.fail", "err", err)
		g.trySendError(client, "snapshot_failed", "presence unavailable")
	}

	var closeOnce sync.Once

	// shutdown is the single teardown path. It does not close client.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			unlock := g.transitions.Lock(client.UserID)
			if g.registry.Unregister(client.UserID, client) {
				bctx, bcancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.WriteTimeout)
				g.broadcast(bctx, client, v1.TypeOffline)
				bcancel()
			}
			unlock()
			g.metrics.SetOnlineUsers(g.registry.Len())
			g.metrics.ConnClosed()

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			log.Info("ws.close", "code", code, "reason", reason)
		})
	}

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					log.Info("ws.ping.fail", "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		env, err := readEnvelope(ctx, conn)

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(g.now()) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeSync:
			if err := g.sendSnapshot(ctx, client); err != nil {
				log.Error("presence.snapshot.fail", "err", err)
				g.trySendError(client, "snapshot_failed", "presence unavailable")
			}
		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- presence fan-out ----

// broadcast sends subject's online/offline event to every other online user with no block in
// either direction. A failed block lookup skips the broadcast.
func (g *Gateway) broadcast(ctx context.Context, subject *Client, typ string) {
	hidden, err := g.blocks.BlockedWith(ctx, subject.UserID)
	if err != nil {
		g.log.Error("presence.broadcast.skip", "type", typ, "user_id", subject.UserID, "err", err)
		return
	}

	payload, _ := json.Marshal(v1.UserPayload{UserID: subject.UserID, Username: subject.Username})
	env, err := g.newEnvelope(typ, payload)
	if err != nil {
		g.log.Error("presence.broadcast.skip", "type", typ, "user_id", subject.UserID, "err", err)
		return
	}

	recipients := 0
	for _, uid := range g.registry.OnlineUsers() {
		if uid == subject.UserID {
			continue
		}
		if _, blocked := hidden[uid]; blocked {
			continue
		}
		for _, h := range g.registry.HandlesFor(uid) {
			ok := h.Enqueue(env)
			g.metrics.PresenceEvent(typ, ok)
			if ok {
				recipients++
			}
		}
	}
	g.log.Debug("presence.broadcast", "type", typ, "user_id", subject.UserID, "recipients", recipients)
}

// sendSnapshot enqueues the online users visible to client, excluding itself.
func (g *Gateway) sendSnapshot(ctx context.Context, client *Client) error {
	hidden, err := g.blocks.BlockedWith(ctx, client.UserID)
	if err != nil {
		return err
	}

	users := make([]v1.UserPayload, 0)
	for _, uid := range g.registry.OnlineUsers() {
		if uid == client.UserID {
			continue
		}
		if _, blocked := hidden[uid]; blocked {
			continue
		}
		hs := g.registry.HandlesFor(uid)
		if len(hs) == 0 {
			continue
		}
		users = append(users, v1.UserPayload{UserID: uid, Username: hs[0].Username})
	}

	payload, _ := json.Marshal(v1.SnapshotPayload{Users: users})
	env, err := g.newEnvelope(v1.TypeSnapshot, payload)
	if err != nil {
		return err
	}
	ok := client.Enqueue(env)
	g.metrics.PresenceEvent(v1.TypeSnapshot, ok)
	if !ok {
		return errors.New("backpressure: snapshot")
	}
	return nil
}

// ---- send helpers ----

func (g *Gateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env, err := g.newEnvelope(v1.TypeError, p)
	if err != nil {
		return
	}
	_ = client.Enqueue(env)
}

// ---- envelope IO ----

func (g *Gateway) newEnvelope(typ string, payload json.RawMessage) (v1.Envelope, error) {
	now := g.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      now,
		Payload: payload,
	}, nil
}

// errBadJSON marks a frame that arrived intact but did not decode.
var errBadJSON = errors.New("realtime: bad json")

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	}
	return readErrUnknown
}
