// Package message defines the control payloads exchanged between server and
// clients, and constructors for the envelopes that carry them.
package message

import (
	"encoding/json"

	"renaissance/internal/network"
)

// Message type tags. The session routers key dispatch on these.
const (
	TypeSetupConnection     = "setup_connection"
	TypeLobbyCapacity       = "lobby_capacity"
	TypeKeepAlive           = "keep_alive"
	TypeClientAccepted      = "client_accepted"
	TypeNicknameUnavailable = "nickname_unavailable"
	TypeInitialSelection    = "initial_selection"
	TypeSignalActivePlayer  = "signal_active_player"
	TypeNotifyDisconnection = "notify_disconnection"
	TypeNotifyReconnection  = "notify_reconnection"
	TypeGameStarted         = "game_started"
	TypeScoreBoard          = "score_board"
	TypeMoveResponse        = "move_response"
	TypeMoveApplied         = "move_applied"
	TypeEndgameStarted      = "endgame_started"

	// Move requests, forwarded to the rules engine after turn checks.
	TypeMarketDraw = "market_draw"
	TypeBuyCard    = "buy_card"
	TypeProduction = "production"
	TypeEndTurn    = "end_turn"
)

// Rejection kinds carried by MoveResponse. Game-rule rejections pass through
// with the kind reported by the rules engine.
const (
	RejectNotActivePlayer        = "not_active_player"
	RejectPrimaryMoveAlreadyMade = "primary_move_already_made"
	RejectPrimaryMoveNotMade     = "primary_move_not_made"
	RejectMatchOver              = "match_over"
	RejectUnknownCommand         = "unknown_command"
)

type SetupConnectionPayload struct {
	Nickname string `json:"nickname"`
}

type LobbyCapacityPayload struct {
	Size int `json:"size"`
}

type ClientAcceptedPayload struct {
	Nickname    string `json:"nickname"`
	Reconnected bool   `json:"reconnected,omitempty"`
}

type InitialSelectionRequestPayload struct {
	// Resources the player may pick bonus resources from, and how many picks
	// they are entitled to. Extra faith is granted server-side.
	Options []string `json:"options"`
	Picks   int      `json:"picks"`
}

type InitialSelectionResponsePayload struct {
	Resources []string `json:"resources"`
}

type SignalActivePlayerPayload struct {
	Nickname string `json:"nickname"`
	Phase    string `json:"phase"`
}

type NicknamePayload struct {
	Nickname string `json:"nickname"`
}

type GameStartedPayload struct {
	MatchID string   `json:"match_id"`
	Players []string `json:"players"`
}

type ScoreBoardPayload struct {
	Scores map[string]int `json:"scores"`
}

type MoveResponsePayload struct {
	OK        bool            `json:"ok"`
	Rejection string          `json:"rejection,omitempty"`
	Delta     json.RawMessage `json:"delta,omitempty"`
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// All payload types marshal cleanly; a failure here is a programming
		// error, not a runtime condition.
		panic(err)
	}
	return raw
}

func notification(msgType string, payload any) network.Message {
	msg := network.Message{Kind: network.KindNotification, Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	return msg
}

// Request builds a request envelope. The correlation ID is filled in by
// SendAndWait when a response is expected.
func Request(msgType string, payload any) network.Message {
	msg := network.Message{Kind: network.KindRequest, Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	return msg
}

// Response builds a response envelope bound to the correlation ID of the
// request it answers.
func Response(msgType string, correlation uint64, payload any) network.Message {
	msg := network.Message{
		Kind:        network.KindResponse,
		Type:        msgType,
		Correlation: correlation,
	}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	return msg
}

func ClientAccepted(nickname string, reconnected bool) network.Message {
	return notification(TypeClientAccepted, ClientAcceptedPayload{Nickname: nickname, Reconnected: reconnected})
}

func NicknameUnavailable() network.Message {
	return notification(TypeNicknameUnavailable, nil)
}

func RequestLobbyCapacity() network.Message {
	return Request(TypeLobbyCapacity, nil)
}

func RequestInitialSelection(options []string, picks int) network.Message {
	return Request(TypeInitialSelection, InitialSelectionRequestPayload{Options: options, Picks: picks})
}

func SignalActivePlayer(nickname, phase string) network.Message {
	return notification(TypeSignalActivePlayer, SignalActivePlayerPayload{Nickname: nickname, Phase: phase})
}

func NotifyDisconnection(nickname string) network.Message {
	return notification(TypeNotifyDisconnection, NicknamePayload{Nickname: nickname})
}

func NotifyReconnection(nickname string) network.Message {
	return notification(TypeNotifyReconnection, NicknamePayload{Nickname: nickname})
}

func GameStarted(matchID string, players []string) network.Message {
	return notification(TypeGameStarted, GameStartedPayload{MatchID: matchID, Players: players})
}

func ScoreBoard(scores map[string]int) network.Message {
	return notification(TypeScoreBoard, ScoreBoardPayload{Scores: scores})
}

// MoveApplied tells the other participants what the active player did.
func MoveApplied(delta json.RawMessage) network.Message {
	return network.Message{
		Kind:    network.KindNotification,
		Type:    TypeMoveApplied,
		Payload: delta,
	}
}

// EndgameStarted announces that the current round is the last one.
func EndgameStarted(trigger string) network.Message {
	return notification(TypeEndgameStarted, NicknamePayload{Nickname: trigger})
}

func MoveAccepted(correlation uint64, delta json.RawMessage) network.Message {
	return Response(TypeMoveResponse, correlation, MoveResponsePayload{OK: true, Delta: delta})
}

func MoveRejected(correlation uint64, rejection string) network.Message {
	return Response(TypeMoveResponse, correlation, MoveResponsePayload{OK: false, Rejection: rejection})
}
