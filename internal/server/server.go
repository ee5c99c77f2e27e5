// Package server owns the WebSocket edge: accepting sockets, session
// lifecycle, login, and dispatching client frames into the registry.
package server

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mazzetti/tressette/internal/auth"
	"github.com/mazzetti/tressette/internal/cache"
	"github.com/mazzetti/tressette/internal/game"
	"github.com/mazzetti/tressette/internal/ledger"
	"github.com/mazzetti/tressette/internal/protocol"
	"github.com/mazzetti/tressette/internal/registry"
)

// Server accepts WebSocket connections and routes authenticated frames
// to the match registry. It is the game engine's Broadcaster: frames
// addressed to users without a live session are dropped.
type Server struct {
	cfg      *Config
	logger   *log.Logger
	tokens   *auth.Service
	ledger   *ledger.Ledger
	presence *cache.Presence
	clock    quartz.Clock
	rng      *rand.Rand

	// Registry is set after construction; the registry needs the server
	// as its Broadcaster, so the two are tied together in two steps.
	registry *registry.Registry

	mu       sync.Mutex
	sessions map[int64]*Session

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New constructs the server. Call SetRegistry before ListenAndServe.
func New(cfg *Config, tokens *auth.Service, led *ledger.Ledger, presence *cache.Presence, clock quartz.Clock, rng *rand.Rand, logger *log.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger.WithPrefix("server"),
		tokens:   tokens,
		ledger:   led,
		presence: presence,
		clock:    clock,
		rng:      rng,
		sessions: make(map[int64]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Game clients are native apps, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetRegistry wires in the match registry.
func (s *Server) SetRegistry(r *registry.Registry) { s.registry = r }

// SendToUser implements game.Broadcaster.
func (s *Server) SendToUser(uid int64, frame *protocol.Frame) {
	s.mu.Lock()
	sess := s.sessions[uid]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	sess.Send(frame)
}

// attach binds an authenticated session to its user id. A previous
// session for the same user is force-closed: one socket per account.
func (s *Server) attach(uid int64, sess *Session) {
	s.mu.Lock()
	old := s.sessions[uid]
	s.sessions[uid] = sess
	s.mu.Unlock()

	if old != nil && old != sess {
		s.logger.Info("superseding session", "uid", uid)
		old.Close()
	}
	s.presence.UserOnline(context.Background(), uid)
}

// detach removes the session binding if it still owns it.
func (s *Server) detach(uid int64, sess *Session) {
	s.mu.Lock()
	owned := s.sessions[uid] == sess
	if owned {
		delete(s.sessions, uid)
	}
	s.mu.Unlock()
	if !owned {
		// A superseding login already took over the binding.
		return
	}

	ctx := context.Background()
	s.presence.UserOffline(ctx, uid)
	s.registry.Disconnect(uid)
	if _, seated := s.registry.MatchOf(uid); !seated {
		s.ledger.Evict(ctx, uid)
	}
}

// handleWS upgrades the socket and runs a session until it dies.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sess := newSession(conn, s, s.logger)
	sess.Start()
}

// ListenAndServe blocks until the context is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{
		Addr:        s.cfg.ListenAddress(),
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	s.logger.Info("listening", "addr", s.cfg.ListenAddress())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown failed", "error", err)
		}
		s.closeAllSessions()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) closeAllSessions() {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()
	for _, sess := range open {
		sess.Close()
	}
}

// newGuestCredential returns a fresh login secret for a guest account.
func newGuestCredential() string {
	return uuid.NewString()
}

// generalInfo builds the lobby bootstrap frame.
func (s *Server) generalInfo() protocol.GeneralInfo {
	rules := s.cfg.GameRules()
	return protocol.GeneralInfo{
		MinGoldPlay:      s.cfg.Bets[0] * rules.BetMultiplierMin,
		TurnTimeSeconds:  int(rules.TurnTime / time.Second),
		BetMultiplierMin: rules.BetMultiplierMin,
		Bets:             s.cfg.Bets,
		Timestamp:        s.clock.Now().UnixMilli(),
	}
}

// userInfo builds the profile frame sent after login.
func (s *Server) userInfo(u *ledger.User, gold int64) protocol.UserInfo {
	return protocol.UserInfo{
		UserID: u.ID,
		Name:   u.Name,
		Gold:   gold,
		Level:  levelForExp(u.Exp),
		Exp:    u.Exp,
		Games:  u.Games,
		Wins:   u.Wins,
	}
}

// levelForExp maps accumulated experience onto a display level.
func levelForExp(exp int64) int {
	level := 1
	for threshold := int64(100); exp >= threshold && level < 99; threshold *= 2 {
		exp -= threshold
		level++
	}
	return level
}

var _ game.Broadcaster = (*Server)(nil)
