package server

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazzetti/tressette/internal/auth"
	"github.com/mazzetti/tressette/internal/cache"
	"github.com/mazzetti/tressette/internal/game"
	"github.com/mazzetti/tressette/internal/ledger"
	"github.com/mazzetti/tressette/internal/protocol"
	"github.com/mazzetti/tressette/internal/registry"
)

type wsClient struct {
	t       *testing.T
	conn    *websocket.Conn
	token   string
	backlog []*protocol.Frame
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server.DevMode = true

	logger := log.New(io.Discard)
	clock := quartz.NewReal()
	rng := rand.New(rand.NewSource(1))
	led := ledger.New(ledger.NewMemoryStore(), logger)
	presence := cache.New(nil, logger)
	tokens := auth.New("test-secret", time.Hour, clock)

	srv := New(cfg, tokens, led, presence, clock, rng, logger)
	reg := registry.New(cfg.GameRules(), cfg.Bets, srv, led, presence, clock, rng, logger)
	srv.SetRegistry(reg)

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(cmd protocol.Command, data any) {
	c.t.Helper()
	frame, err := protocol.NewFrame(cmd, data)
	require.NoError(c.t, err)
	frame.Token = c.token
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

// recv returns the next frame matching cmd. Server pushes arrive
// interleaved with command responses, so frames read past while waiting
// are kept and served to later recv calls in arrival order.
func (c *wsClient) recv(cmd protocol.Command) *protocol.Frame {
	c.t.Helper()
	for i, frame := range c.backlog {
		if frame.Cmd == cmd {
			c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
			return frame
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var frame protocol.Frame
		require.NoError(c.t, c.conn.ReadJSON(&frame))
		if frame.Cmd == cmd {
			return &frame
		}
		c.backlog = append(c.backlog, &frame)
	}
}

func decode[T any](t *testing.T, frame *protocol.Frame) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(frame.Data, &out))
	return out
}

// login provisions a guest account and logs in over the socket.
func (c *wsClient) login() protocol.LoginResponse {
	c.t.Helper()
	c.send(protocol.CmdCreateGuest, nil)
	created := decode[protocol.CreateGuestResponse](c.t, c.recv(protocol.CmdCreateGuest))

	c.send(protocol.CmdLogin, protocol.LoginRequest{
		LoginType:  protocol.LoginGuest,
		Credential: created.Credential,
	})
	resp := decode[protocol.LoginResponse](c.t, c.recv(protocol.CmdLogin))
	c.token = resp.SessionToken
	return resp
}

func TestPingBeforeLogin(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)

	c.send(protocol.CmdPing, nil)
	frame := c.recv(protocol.CmdPing)
	assert.Equal(t, protocol.CmdPing, frame.Cmd)
}

func TestMalformedFrameDoesNotCloseSocket(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)

	// Undecodable input is dropped; the connection keeps serving.
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	c.send(protocol.CmdPing, nil)
	frame := c.recv(protocol.CmdPing)
	assert.Equal(t, protocol.CmdPing, frame.Cmd)
}

func TestUnauthenticatedCommandsRejected(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)

	c.send(protocol.CmdQuickPlay, nil)
	ev := decode[protocol.ErrorEvent](t, c.recv(protocol.CmdError))
	assert.Equal(t, "not_authenticated", ev.Code)
}

func TestGuestLoginFlow(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)

	resp := c.login()
	require.True(t, resp.OK)
	assert.NotZero(t, resp.UserID)
	assert.NotEmpty(t, resp.SessionToken)

	info := decode[protocol.UserInfo](t, c.recv(protocol.CmdUserInfo))
	assert.Equal(t, resp.UserID, info.UserID)
	assert.Equal(t, int64(100_000), info.Gold)

	general := decode[protocol.GeneralInfo](t, c.recv(protocol.CmdGeneralInfo))
	assert.NotEmpty(t, general.Bets)
}

func TestLoginWithBadCredential(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)

	c.send(protocol.CmdLogin, protocol.LoginRequest{
		LoginType:  protocol.LoginGuest,
		Credential: "no-such-credential",
	})
	resp := decode[protocol.LoginResponse](t, c.recv(protocol.CmdLogin))
	assert.False(t, resp.OK)
	assert.Equal(t, "invalid_credential", resp.ErrorCode)
}

func TestStaleTokenRejected(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)
	c.login()

	c.token = "forged"
	c.send(protocol.CmdTableList, nil)
	ev := decode[protocol.ErrorEvent](t, c.recv(protocol.CmdError))
	assert.Equal(t, "invalid_token", ev.Code)
}

func TestCreateTableAndSnapshot(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)
	c.login()

	c.send(protocol.CmdCreateTable, protocol.CreateTableRequest{
		Bet: 1000, PlayerMode: game.ModeSolo, PointMode: 11,
	})
	result := decode[protocol.JoinTableResult](t, c.recv(protocol.CmdJoinTableResult))
	require.Empty(t, result.ErrorCode)
	assert.NotZero(t, result.MatchID)

	snap := decode[protocol.GameInfo](t, c.recv(protocol.CmdGameInfo))
	assert.Equal(t, result.MatchID, snap.MatchID)
	assert.Equal(t, "waiting", snap.State)
}

func TestTableListOverSocket(t *testing.T) {
	_, ts := newTestServer(t)

	host := dial(t, ts)
	host.login()
	host.send(protocol.CmdCreateTable, protocol.CreateTableRequest{
		Bet: 1000, PlayerMode: game.ModeSolo, PointMode: 11,
	})
	result := decode[protocol.JoinTableResult](t, host.recv(protocol.CmdJoinTableResult))
	require.Empty(t, result.ErrorCode)

	other := dial(t, ts)
	other.login()
	other.send(protocol.CmdTableList, nil)
	list := decode[protocol.TableList](t, other.recv(protocol.CmdTableList))
	require.Len(t, list.Tables, 1)
	assert.Equal(t, result.MatchID, list.Tables[0].MatchID)
}

func TestCheatGoldInDevMode(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)
	c.login()

	c.send(protocol.CmdCheatGold, protocol.CheatGoldRequest{Gold: 5000})
	update := decode[protocol.UpdateMoney](t, c.recv(protocol.CmdUpdateMoney))
	assert.Equal(t, int64(105_000), update.Gold)
}

func TestSupersedingLoginClosesOldSocket(t *testing.T) {
	_, ts := newTestServer(t)

	first := dial(t, ts)
	resp := loginReturningCredential(t, first)

	second := dial(t, ts)
	second.send(protocol.CmdLogin, protocol.LoginRequest{
		LoginType:  protocol.LoginGuest,
		Credential: resp,
	})
	loginResp := decode[protocol.LoginResponse](t, second.recv(protocol.CmdLogin))
	require.True(t, loginResp.OK)

	// The first socket is force-closed by the second login.
	_ = first.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame protocol.Frame
		if err := first.conn.ReadJSON(&frame); err != nil {
			return
		}
	}
}

// loginReturningCredential creates a guest and logs in on the given
// client, returning the credential for a second login elsewhere.
func loginReturningCredential(t *testing.T, c *wsClient) string {
	t.Helper()
	c.send(protocol.CmdCreateGuest, nil)
	created := decode[protocol.CreateGuestResponse](t, c.recv(protocol.CmdCreateGuest))
	c.send(protocol.CmdLogin, protocol.LoginRequest{
		LoginType:  protocol.LoginGuest,
		Credential: created.Credential,
	})
	resp := decode[protocol.LoginResponse](t, c.recv(protocol.CmdLogin))
	require.True(t, resp.OK)
	c.token = resp.SessionToken
	return created.Credential
}
