package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicee/internal/app"
	"dicee/internal/auth"
	"dicee/internal/config"
	"dicee/internal/domain"
	"dicee/internal/store"
)

// stubVerifier accepts tokens of the form "tok-<userID>".
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	userID, ok := strings.CutPrefix(token, "tok-")
	if !ok {
		return auth.Claims{}, auth.ErrUnauthorized
	}
	return auth.Claims{UserID: userID, DisplayName: "user-" + userID}, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := NewServer(config.DefaultRules(), stubVerifier{}, app.NewService(nil), st, discardLogger())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown()
	})
	return s, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", wantType)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == wantType {
			return f
		}
	}
}

func TestUpgradeRequiresValidToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws/lobby")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/ws/lobby?token=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts, "/ws/room/ABCDEF?token=bogus"), nil)
	require.Error(t, err)
	if resp != nil {
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestRoomCodeValidatedBeforeAuth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws/room/bad!?token=tok-u1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLobbyConnectReceivesSnapshot(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts, "/ws/lobby?token=tok-u1")
	f := readFrame(t, conn, EvtLobbyState)

	var state LobbyStateData
	require.NoError(t, json.Unmarshal(f.Data, &state))
	require.Len(t, state.Users, 1)
	assert.Equal(t, "u1", state.Users[0].UserID)
}

func TestLobbyRESTEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts, "/ws/lobby?token=tok-u1")
	readFrame(t, conn, EvtLobbyState)

	resp, err := http.Get(ts.URL + "/lobby")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.OnlineUsers)
	assert.Equal(t, 1, summary.Connections)

	resp, err = http.Get(ts.URL + "/lobby/rooms")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/rooms/ABCDEF")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no actor for an unused code")
}

func TestRoomSnapshotOverREST(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialWS(t, ts, "/ws/room/SNAP23?token=tok-u1")
	readFrame(t, conn, EvtRoomState)
	require.NoError(t, conn.WriteJSON(Command{Type: CmdRoomJoin, Data: mustRaw(t, JoinPayload{DisplayName: "Alice"})}))
	readFrame(t, conn, EvtPlayerJoined)

	resp, err := http.Get(ts.URL + "/rooms/SNAP23")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "SNAP23", snap.Room.Code)
	assert.Equal(t, domain.PhaseWaiting, snap.Game.Phase)
	assert.Equal(t, 1, snap.Connections)
	require.Len(t, snap.Room.Players, 1)
	assert.Equal(t, "u1", snap.Room.Players[0].UserID)
}

func TestCreateRoomMintsValidCode(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/rooms?token=tok-u1", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, domain.ValidRoomCode(created.Code), "minted code %q", created.Code)
}

func TestRoomFlowOverWebSocket(t *testing.T) {
	_, ts := newTestServer(t)

	host := dialWS(t, ts, "/ws/room/GAMES2?token=tok-u1")
	readFrame(t, host, EvtRoomState)
	require.NoError(t, host.WriteJSON(Command{Type: CmdRoomJoin, Data: mustRaw(t, JoinPayload{DisplayName: "Alice"})}))
	readFrame(t, host, EvtPlayerJoined)

	guest := dialWS(t, ts, "/ws/room/GAMES2?token=tok-u2")
	readFrame(t, guest, EvtRoomState)
	require.NoError(t, guest.WriteJSON(Command{Type: CmdRoomJoin, Data: mustRaw(t, JoinPayload{DisplayName: "Bob"})}))
	readFrame(t, guest, EvtPlayerJoined)

	// The guest cannot start; the host can.
	require.NoError(t, guest.WriteJSON(Command{Type: CmdGameStart}))
	f := readFrame(t, guest, EvtGameError)
	var errData ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &errData))
	assert.Equal(t, "NOT_HOST", errData.Code)

	require.NoError(t, host.WriteJSON(Command{Type: CmdGameStart}))
	readFrame(t, host, EvtGameStarted)
	readFrame(t, guest, EvtGameStarted)

	// The countdown runs on the real clock; both sides then see the first turn.
	f = readFrame(t, host, EvtTurnStarted)
	var turn struct {
		UserID string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &turn))
	readFrame(t, guest, EvtTurnStarted)

	current, other := host, guest
	if turn.UserID == "u2" {
		current, other = guest, host
	}

	require.NoError(t, current.WriteJSON(Command{Type: CmdDiceRoll}))
	f = readFrame(t, other, EvtDiceRolled)
	var rolled struct {
		Dice      [5]int `json:"dice"`
		RollsLeft int    `json:"rollsLeft"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &rolled))
	assert.Equal(t, 2, rolled.RollsLeft)

	// Rolling out of turn is rejected without disturbing the game.
	require.NoError(t, other.WriteJSON(Command{Type: CmdDiceRoll}))
	f = readFrame(t, other, EvtGameError)
	require.NoError(t, json.Unmarshal(f.Data, &errData))
	assert.Equal(t, "NOT_YOUR_TURN", errData.Code)

	require.NoError(t, current.WriteJSON(Command{Type: CmdCategoryScore, Data: mustRaw(t, ScorePayload{Category: "chance"})}))
	readFrame(t, current, EvtCategoryScored)
	readFrame(t, other, EvtTurnStarted)
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
