package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/mazzetti/tressette/internal/auth"
	"github.com/mazzetti/tressette/internal/deck"
	"github.com/mazzetti/tressette/internal/game"
	"github.com/mazzetti/tressette/internal/ledger"
	"github.com/mazzetti/tressette/internal/protocol"
	"github.com/mazzetti/tressette/internal/registry"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// The read deadline; refreshed by pongs and by any inbound frame,
	// so idle lobby clients only need the keepalive ping.
	pongWait = 60 * time.Second

	// Ping cadence. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from a client.
	maxFrameSize = 8192
)

// Session is one client socket. It starts unauthenticated; a successful
// login binds it to a user id and registers it with the server.
type Session struct {
	conn   *websocket.Conn
	server *Server
	logger *log.Logger

	send      chan *protocol.Frame
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu    sync.RWMutex
	uid   int64
	token string
}

func newSession(conn *websocket.Conn, server *Server, logger *log.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:   conn,
		server: server,
		logger: logger.WithPrefix("session").With("remote", conn.RemoteAddr().String()),
		send:   make(chan *protocol.Frame, 256),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the read and write pumps.
func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
}

// Close tears the session down. Safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.send)
		_ = s.conn.Close()
	})
}

// Send queues a frame. A full buffer closes the session rather than
// blocking a match broadcast.
func (s *Session) Send(frame *protocol.Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("send on closed session", "error", r)
		}
	}()

	select {
	case s.send <- frame:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("send buffer full, closing session", "uid", s.UserID())
		s.Close()
	}
}

// UserID returns the bound user, zero before login.
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

func (s *Session) bind(uid int64, token string) {
	s.mu.Lock()
	s.uid = uid
	s.token = token
	s.mu.Unlock()
}

func (s *Session) sessionToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) readPump() {
	defer func() {
		uid := s.UserID()
		s.Close()
		if uid != 0 {
			s.server.detach(uid, s)
		}
	}()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("websocket error", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		// A frame that does not decode is dropped; the socket itself is
		// still healthy.
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		s.handleFrame(&frame)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Error("failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handleFrame(frame *protocol.Frame) {
	if frame.Cmd == protocol.CmdPing {
		s.Send(&protocol.Frame{Cmd: protocol.CmdPing})
		return
	}

	uid := s.UserID()
	s.logger.Debug("frame received", "cmd", int(frame.Cmd), "uid", uid)

	if uid == 0 {
		switch frame.Cmd {
		case protocol.CmdLogin:
			s.handleLogin(frame)
		case protocol.CmdCreateGuest:
			s.handleCreateGuest()
		default:
			s.sendError(frame.Cmd, "not_authenticated", "")
		}
		return
	}

	// Authenticated commands must echo the issued session token.
	if frame.Token != s.sessionToken() {
		s.sendError(frame.Cmd, "invalid_token", "")
		return
	}

	switch frame.Cmd {
	case protocol.CmdLogout:
		s.handleLogout(uid)
	case protocol.CmdQuickPlay:
		s.handleQuickPlay(uid)
	case protocol.CmdCreateTable:
		s.handleCreateTable(uid, frame)
	case protocol.CmdJoinTableByID:
		s.handleJoinTable(uid, frame)
	case protocol.CmdTableList:
		s.handleTableList(uid)
	case protocol.CmdRegisterLeave:
		s.handleRegisterLeave(uid, frame)
	case protocol.CmdLeaveGame:
		s.handleLeaveGame(uid)
	case protocol.CmdPlayCard:
		s.handlePlayCard(uid, frame)
	case protocol.CmdChatMessage:
		s.handleChatMessage(uid, frame)
	case protocol.CmdChatEmoticon:
		s.handleChatEmoticon(uid, frame)
	case protocol.CmdCheatGold:
		s.handleCheatGold(uid, frame)
	default:
		s.sendError(frame.Cmd, "unknown_command", "")
	}
}

func (s *Session) sendError(cmd protocol.Command, code, message string) {
	s.Send(protocol.MustFrame(protocol.CmdError, protocol.ErrorEvent{
		Cmd: cmd, Code: code, Message: message,
	}))
}

func (s *Session) handleLogin(frame *protocol.Frame) {
	var req protocol.LoginRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.sendError(protocol.CmdLogin, "invalid_payload", "")
		return
	}
	ctx := s.ctx
	srv := s.server

	var user *ledger.User
	var err error
	switch req.LoginType {
	case protocol.LoginGuest:
		user, err = srv.ledger.Store().UserByCredential(ctx, req.Credential)
	case protocol.LoginToken:
		var claims *auth.Claims
		claims, err = srv.tokens.Verify(req.Credential)
		if err == nil {
			user, err = srv.ledger.Store().UserByID(ctx, claims.UserID)
		}
	default:
		s.Send(protocol.MustFrame(protocol.CmdLogin, protocol.LoginResponse{
			OK: false, ErrorCode: "invalid_login_type",
		}))
		return
	}
	if err != nil {
		code := "invalid_credential"
		if errors.Is(err, auth.ErrExpiredToken) {
			code = "expired_token"
		}
		s.logger.Info("login rejected", "code", code)
		s.Send(protocol.MustFrame(protocol.CmdLogin, protocol.LoginResponse{
			OK: false, ErrorCode: code,
		}))
		return
	}

	token, err := srv.tokens.Mint(user.ID, user.Guest)
	if err != nil {
		s.logger.Error("token mint failed", "uid", user.ID, "error", err)
		s.Send(protocol.MustFrame(protocol.CmdLogin, protocol.LoginResponse{
			OK: false, ErrorCode: "internal",
		}))
		return
	}

	s.bind(user.ID, token)
	srv.attach(user.ID, s)
	srv.presence.StoreSession(ctx, user.ID, token)
	s.logger.Info("user logged in", "uid", user.ID, "guest", user.Guest)

	s.Send(protocol.MustFrame(protocol.CmdLogin, protocol.LoginResponse{
		OK: true, UserID: user.ID, SessionToken: token,
	}))

	gold, err := srv.ledger.Balance(ctx, user.ID)
	if err != nil {
		gold = user.Gold
	}
	s.Send(protocol.MustFrame(protocol.CmdUserInfo, srv.userInfo(user, gold)))
	s.Send(protocol.MustFrame(protocol.CmdGeneralInfo, srv.generalInfo()))

	// A seated user gets the full table snapshot straight away.
	srv.registry.Reconnect(user.ID)
}

func (s *Session) handleCreateGuest() {
	credential := newGuestCredential()
	name := "Guest_" + credential[:8]
	user, err := s.server.ledger.Store().CreateGuest(s.ctx, name, credential, s.server.cfg.Server.GuestGold)
	if err != nil {
		s.logger.Error("guest creation failed", "error", err)
		s.sendError(protocol.CmdCreateGuest, "internal", "")
		return
	}
	s.logger.Info("guest created", "uid", user.ID)
	s.Send(protocol.MustFrame(protocol.CmdCreateGuest, protocol.CreateGuestResponse{
		Credential: credential,
		UserID:     user.ID,
	}))
}

func (s *Session) handleLogout(uid int64) {
	s.server.presence.DropSession(s.ctx, uid)
	s.Close()
}

func (s *Session) handleQuickPlay(uid int64) {
	m, err := s.server.registry.QuickPlay(s.ctx, uid, s.userName(uid))
	if err != nil {
		s.Send(protocol.MustFrame(protocol.CmdJoinTableResult, protocol.JoinTableResult{
			ErrorCode: errorCode(err),
		}))
		return
	}
	s.Send(protocol.MustFrame(protocol.CmdJoinTableResult, protocol.JoinTableResult{
		MatchID: m.ID,
	}))
}

func (s *Session) handleCreateTable(uid int64, frame *protocol.Frame) {
	var req protocol.CreateTableRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.sendError(protocol.CmdCreateTable, "invalid_payload", "")
		return
	}
	settings := game.Settings{
		Bet:        req.Bet,
		PlayerMode: req.PlayerMode,
		PointMode:  req.PointMode,
		IsPrivate:  req.IsPrivate,
	}
	m, err := s.server.registry.Create(s.ctx, uid, s.userName(uid), settings)
	if err != nil {
		s.Send(protocol.MustFrame(protocol.CmdJoinTableResult, protocol.JoinTableResult{
			ErrorCode: errorCode(err),
		}))
		return
	}
	s.Send(protocol.MustFrame(protocol.CmdJoinTableResult, protocol.JoinTableResult{
		MatchID: m.ID,
	}))
}

func (s *Session) handleJoinTable(uid int64, frame *protocol.Frame) {
	var req protocol.JoinTableRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.sendError(protocol.CmdJoinTableByID, "invalid_payload", "")
		return
	}
	m, err := s.server.registry.JoinByID(s.ctx, uid, s.userName(uid), req.MatchID)
	if err != nil {
		s.Send(protocol.MustFrame(protocol.CmdJoinTableResult, protocol.JoinTableResult{
			ErrorCode: errorCode(err),
		}))
		return
	}
	s.Send(protocol.MustFrame(protocol.CmdJoinTableResult, protocol.JoinTableResult{
		MatchID: m.ID,
	}))
}

func (s *Session) handleTableList(uid int64) {
	gold, err := s.server.ledger.Balance(s.ctx, uid)
	if err != nil {
		s.sendError(protocol.CmdTableList, "internal", "")
		return
	}
	s.Send(protocol.MustFrame(protocol.CmdTableList, s.server.registry.TableList(gold)))
}

func (s *Session) handleRegisterLeave(uid int64, frame *protocol.Frame) {
	var req protocol.RegisterLeaveRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.sendError(protocol.CmdRegisterLeave, "invalid_payload", "")
		return
	}
	if err := s.server.registry.RegisterLeave(uid, req.Status); err != nil {
		s.sendError(protocol.CmdRegisterLeave, errorCode(err), "")
		return
	}
	s.Send(protocol.MustFrame(protocol.CmdRegisterLeave, protocol.RegisterLeaveResult{
		Status: req.Status,
	}))
}

func (s *Session) handleLeaveGame(uid int64) {
	if err := s.server.registry.Leave(uid); err != nil {
		s.sendError(protocol.CmdLeaveGame, errorCode(err), "")
	}
}

func (s *Session) handlePlayCard(uid int64, frame *protocol.Frame) {
	var req protocol.PlayCardRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.sendError(protocol.CmdPlayCard, "invalid_payload", "")
		return
	}
	if req.CardID < 0 || req.CardID >= deck.NumCards {
		s.sendError(protocol.CmdPlayCard, "card_not_held", "")
		return
	}
	if err := s.server.registry.PlayCard(uid, deck.Card(req.CardID)); err != nil {
		s.sendError(protocol.CmdPlayCard, errorCode(err), "")
	}
}

func (s *Session) handleChatMessage(uid int64, frame *protocol.Frame) {
	var req protocol.ChatMessageRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil || req.Message == "" {
		s.sendError(protocol.CmdChatMessage, "invalid_payload", "")
		return
	}
	s.server.registry.Chat(uid, req.Message, 0)
}

func (s *Session) handleChatEmoticon(uid int64, frame *protocol.Frame) {
	var req protocol.ChatEmoticonRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.sendError(protocol.CmdChatEmoticon, "invalid_payload", "")
		return
	}
	s.server.registry.Chat(uid, "", req.EmoticonID)
}

func (s *Session) handleCheatGold(uid int64, frame *protocol.Frame) {
	if !s.server.cfg.Server.DevMode {
		s.sendError(protocol.CmdCheatGold, "feature_disabled", "")
		return
	}
	var req protocol.CheatGoldRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.sendError(protocol.CmdCheatGold, "invalid_payload", "")
		return
	}
	gold, err := s.server.ledger.AddGold(s.ctx, uid, req.Gold)
	if err != nil {
		s.sendError(protocol.CmdCheatGold, "internal", "")
		return
	}
	if err := s.server.ledger.CommitGold(s.ctx, uid); err != nil {
		s.sendError(protocol.CmdCheatGold, "internal", "")
		return
	}
	s.Send(protocol.MustFrame(protocol.CmdUpdateMoney, protocol.UpdateMoney{Gold: gold}))
}

// userName fetches the display name, falling back to an empty string so
// a store hiccup does not fail the whole command.
func (s *Session) userName(uid int64) string {
	u, err := s.server.ledger.Store().UserByID(s.ctx, uid)
	if err != nil {
		return ""
	}
	return u.Name
}

// errorCode maps engine and registry errors to stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrCardNotHeld):
		return "card_not_held"
	case errors.Is(err, game.ErrMustFollowSuit):
		return "must_follow_suit"
	case errors.Is(err, game.ErrNotPlaying):
		return "not_playing"
	case errors.Is(err, game.ErrTrickResolving):
		return "trick_resolving"
	case errors.Is(err, game.ErrMatchFull):
		return "match_full"
	case errors.Is(err, game.ErrMatchStarted):
		return "match_started"
	case errors.Is(err, game.ErrInsufficientGold):
		return "insufficient_gold"
	case errors.Is(err, game.ErrAlreadySeated):
		return "already_seated"
	case errors.Is(err, game.ErrNotInMatch):
		return "not_in_match"
	case errors.Is(err, registry.ErrUserBusy):
		return "user_busy"
	case errors.Is(err, registry.ErrMatchNotFound):
		return "match_not_found"
	case errors.Is(err, registry.ErrBadSettings):
		return "bad_settings"
	default:
		return "internal"
	}
}
