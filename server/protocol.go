package main

import "encoding/json"

// Client -> Server message types
const (
	MsgKeydown    = "keydown"
	MsgDisconnect = "disconnect" // reply to disconnect_message, treated as leave
)

// Server -> Client message types
const (
	MsgPlayerNum         = "player_num"
	MsgPositions         = "positions"
	MsgScores            = "scores"
	MsgGameOver          = "game_over_disconnected"
	MsgDisconnectMessage = "disconnect_message"
)

// Detail tags carried by MsgGameOver
const (
	DetailGameOver     = "game_over"
	DetailDisconnected = "game_over_disconnected"
)

// Reasons carried by MsgDisconnectMessage
const (
	ReasonMatchComplete  = "match_complete"
	ReasonServerShutdown = "server_shutdown"
)

// InMessage is the union of every inbound field. Unknown fields are ignored.
type InMessage struct {
	Type      string `json:"type"`
	PlayerNum int    `json:"player_num,omitempty"`
	Keycode   string `json:"keycode,omitempty"`
}

// ParseInMessage decodes one inbound text frame
func ParseInMessage(raw []byte) (InMessage, error) {
	var msg InMessage
	err := json.Unmarshal(raw, &msg)
	return msg, err
}

// PlayerNumMsg tells a connection which side it plays
type PlayerNumMsg struct {
	Type      string `json:"type" msgpack:"type"`
	PlayerNum int    `json:"player_num" msgpack:"player_num"`
}

// PositionsMsg is the per-tick snapshot
type PositionsMsg struct {
	Type           string `json:"type" msgpack:"type"`
	SpherePosition Vec3   `json:"sphere_position" msgpack:"sphere_position"`
	P1BarPosition  Vec3   `json:"p1_bar_position" msgpack:"p1_bar_position"`
	P2BarPosition  Vec3   `json:"p2_bar_position" msgpack:"p2_bar_position"`
}

// ScoresMsg is sent on every point
type ScoresMsg struct {
	Type         string `json:"type" msgpack:"type"`
	Player1Score int    `json:"player_1_score" msgpack:"player_1_score"`
	Player2Score int    `json:"player_2_score" msgpack:"player_2_score"`
}

// GameOverMsg ends a match, either on score or on disconnect
type GameOverMsg struct {
	Type   string `json:"type" msgpack:"type"`
	Winner int    `json:"winner" msgpack:"winner"`
	Detail string `json:"detail" msgpack:"detail"`
}

// DisconnectMsg tells a client its session was torn down
type DisconnectMsg struct {
	Type   string `json:"type" msgpack:"type"`
	Reason string `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

func NewPlayerNumMsg(n int) PlayerNumMsg {
	return PlayerNumMsg{Type: MsgPlayerNum, PlayerNum: n}
}

func NewPositionsMsg(s Snapshot) PositionsMsg {
	return PositionsMsg{
		Type:           MsgPositions,
		SpherePosition: s.Sphere,
		P1BarPosition:  s.Paddles[0],
		P2BarPosition:  s.Paddles[1],
	}
}

func NewScoresMsg(p1, p2 int) ScoresMsg {
	return ScoresMsg{Type: MsgScores, Player1Score: p1, Player2Score: p2}
}

func NewGameOverMsg(winner int, detail string) GameOverMsg {
	return GameOverMsg{Type: MsgGameOver, Winner: winner, Detail: detail}
}

func NewDisconnectMsg(reason string) DisconnectMsg {
	return DisconnectMsg{Type: MsgDisconnectMessage, Reason: reason}
}

// binaryCapable marks messages that msgpack clients receive as binary frames.
// Only the per-tick snapshot qualifies; everything else stays JSON text.
type binaryCapable interface {
	binaryFrame()
}

func (PositionsMsg) binaryFrame() {}
