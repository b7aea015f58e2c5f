package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bogusMessage struct{}

func (bogusMessage) Type() MessageType { return "teleport" }

func TestEncodeEnvelopeShape(t *testing.T) {
	at := time.Unix(1700000000, 500000000)
	frame, err := EncodeAt(&JoinLobbyMessage{LobbyCode: "ABC123"}, at)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &raw))
	assert.Len(t, raw, 3)
	assert.JSONEq(t, `"join_lobby"`, string(raw["type"]))
	assert.JSONEq(t, `{"lobby_code":"ABC123"}`, string(raw["data"]))
	assert.JSONEq(t, `1700000000.5`, string(raw["timestamp"]))

	env, msg, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeJoinLobby, env.Type)
	assert.True(t, env.Time().Equal(at))
	assert.Equal(t, &JoinLobbyMessage{LobbyCode: "ABC123"}, msg)
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := Encode(bogusMessage{})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	assert.Panics(t, func() { MustEncode(bogusMessage{}) })
}

func TestEncodeAcceptsValueAndPointer(t *testing.T) {
	byValue, err := EncodeAt(PlayerReadyMessage{Ready: true}, time.Unix(1, 0))
	require.NoError(t, err)
	byPointer, err := EncodeAt(&PlayerReadyMessage{Ready: true}, time.Unix(1, 0))
	require.NoError(t, err)
	assert.Equal(t, byValue, byPointer)
}

func TestDecodeTolerance(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType MessageType
		want     Message
	}{
		{"not json", `hello`, "", nil},
		{"json array", `[1, 2, 3]`, "", nil},
		{"json null", `null`, "", nil},
		{"empty object", `{}`, "", nil},
		{"unknown tag", `{"type":"teleport","data":{}}`, "", nil},
		{"tag wrong case", `{"type":"PING","data":{}}`, "", nil},
		{"data is string", `{"type":"join_lobby","data":"ABC123"}`, "", nil},
		{"data is list", `{"type":"join_lobby","data":["ABC123"]}`, "", nil},
		{"field wrong type", `{"type":"join_lobby","data":{"lobby_code":5}}`, "", nil},
		{"ready wrong type", `{"type":"player_ready","data":{"ready":"yes"}}`, "", nil},
		{"missing data", `{"type":"ping"}`, TypePing, &PingMessage{}},
		{"null data", `{"type":"pong","data":null}`, TypePong, &PongMessage{}},
		{"missing timestamp", `{"type":"leave_lobby","data":{}}`, TypeLeaveLobby, &LeaveLobbyMessage{}},
		{
			"unknown fields ignored",
			`{"type":"create_lobby","data":{"lobby_code":"XYZ","max_players":4,"region":"eu"},"timestamp":1}`,
			TypeCreateLobby,
			&CreateLobbyMessage{LobbyCode: "XYZ", MaxPlayers: 4},
		},
		{
			"character kept opaque",
			`{"type":"join_lobby","data":{"lobby_code":"A","character":{"class":"mage"}}}`,
			TypeJoinLobby,
			&JoinLobbyMessage{LobbyCode: "A", Character: json.RawMessage(`{"class":"mage"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, got := Decode([]byte(tt.frame))
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"malformed", `{"type":`, ErrMalformedEnvelope},
		{"unknown", `{"type":"warp","data":{}}`, ErrUnknownType},
		{"bad payload", `{"type":"chat","data":42}`, ErrInvalidPayload},
		{"oversized", `{"type":"chat","data":{"text":"` + strings.Repeat("a", MaxFrameSize) + `"}}`, ErrMalformedEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, msg, err := DecodeEnvelope([]byte(tt.frame))
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, msg)
		})
	}
}

func TestMissingFieldDefaults(t *testing.T) {
	_, msg := Decode([]byte(`{"type":"player_ready","data":{}}`))
	require.IsType(t, &PlayerReadyMessage{}, msg)
	assert.False(t, msg.(*PlayerReadyMessage).Ready)

	_, msg = Decode([]byte(`{"type":"player_update","data":{"position":[3,4]}}`))
	require.IsType(t, &PlayerUpdateMessage{}, msg)
	update := msg.(*PlayerUpdateMessage)
	assert.Equal(t, 100, update.HealthOr(100))
	assert.Equal(t, 3.0, update.Position.X())
	assert.Equal(t, 4.0, update.Position.Y())

	_, msg = Decode([]byte(`{"type":"player_update","data":{"health":0}}`))
	require.IsType(t, &PlayerUpdateMessage{}, msg)
	assert.Equal(t, 0, msg.(*PlayerUpdateMessage).HealthOr(100))
}

func TestEveryTypeHasPayload(t *testing.T) {
	seen := make(map[MessageType]bool)
	for _, typ := range AllTypes {
		assert.True(t, typ.Valid(), typ)
		msg := newMessage(typ)
		require.NotNil(t, msg, typ)
		assert.Equal(t, typ, msg.Type())
		assert.False(t, seen[typ], "duplicate %s", typ)
		seen[typ] = true
	}
	assert.Len(t, seen, 21)
	assert.False(t, MessageType("").Valid())
}

func TestGameStateMessageFlattens(t *testing.T) {
	msg := &GameStateMessage{GameState: GameState{Wave: 3, Score: 1200}}
	frame, err := Encode(msg)
	require.NoError(t, err)

	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, 3.0, env.Data["wave"])
	assert.Equal(t, 1200.0, env.Data["score"])
}

func TestGameStateClone(t *testing.T) {
	gs := NewGameState()
	assert.Equal(t, 1, gs.Wave)
	assert.Equal(t, 0, gs.Score)

	gs.Enemies = []json.RawMessage{json.RawMessage(`{"id":1}`)}
	clone := gs.Clone()
	clone.Enemies[0] = json.RawMessage(`{"id":2}`)
	assert.JSONEq(t, `{"id":1}`, string(gs.Enemies[0]))
}

func TestLobbyInfoPlayerLookup(t *testing.T) {
	info := &LobbyInfoMessage{Players: []PlayerInfo{{ID: "p1", Name: "Ann"}, {ID: "p2", Name: "Bo"}}}

	p, ok := info.Player("p2")
	require.True(t, ok)
	assert.Equal(t, "Bo", p.Name)

	_, ok = info.Player("p3")
	assert.False(t, ok)
}

func payload(t *testing.T, msg Message) string {
	t.Helper()
	env, _, err := DecodeEnvelope(MustEncode(msg))
	require.NoError(t, err)
	return string(env.Data)
}

func TestSnapshotWireShape(t *testing.T) {
	assert.JSONEq(t,
		`{"code":"ABC123","host_id":"p1","players":[],"max_players":4,"game_started":false}`,
		payload(t, &LobbyInfoMessage{Code: "ABC123", HostID: "p1", MaxPlayers: 4}))

	assert.JSONEq(t, `{"error":"Lobby full"}`,
		payload(t, &LobbyInfoMessage{Code: "ABC123", Error: "Lobby full"}))

	reply := payload(t, &ReconnectMessage{Status: "reconnected", LobbyInfo: &LobbyInfoMessage{Code: "ABC123"}})
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(reply), &keys))
	assert.JSONEq(t, `null`, string(keys["game_state"]), "game_state is null before start")
	assert.JSONEq(t, `"reconnected"`, string(keys["status"]))
	assert.Contains(t, string(keys["lobby_info"]), `"game_started":false`)

	assert.JSONEq(t, `{"lobby_code":"ABC123","player_id":"p1"}`,
		payload(t, &ReconnectMessage{LobbyCode: "ABC123", PlayerID: "p1"}))
	assert.JSONEq(t, `{"error":"Lobby not found"}`,
		payload(t, &ReconnectMessage{LobbyCode: "ABC123", Error: "Lobby not found"}))
}

func TestHealthOrOnValue(t *testing.T) {
	hp := 70
	updates := map[string]PlayerUpdateMessage{"p2": {Health: &hp}, "p3": {}}
	assert.Equal(t, 70, updates["p2"].HealthOr(0))
	assert.Equal(t, 100, updates["p3"].HealthOr(100))
}
