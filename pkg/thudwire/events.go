package thudwire

import "encoding/json"

// Event names exchanged with clients over the relay connection.
const (
	// inbound
	EvCreateGame  = "create_game"
	EvAttemptMove = "attempt_move"
	EvWaitForCPU  = "wait_for_cpu"

	// outbound
	EvNewGameCreated = "new_game_created"
	EvMoveAccepted   = "move_accepted"
	EvMoveRejected   = "move_rejected"
	EvCPUResponse    = "cpu_response"
	EvError          = "error"
)

// Envelope is one JSON frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. A payload that cannot be
// marshalled yields an envelope with empty data.
func NewEnvelope(event string, payload any) Envelope {
	env := Envelope{Event: event}
	if payload == nil {
		return env
	}
	if raw, err := json.Marshal(payload); err == nil {
		env.Data = raw
	}
	return env
}

type CreateGame struct {
	DwarfController string `json:"dwarf_controller"`
	TrollController string `json:"troll_controller"`
	Ruleset         string `json:"ruleset,omitempty"`
}

type AttemptMove struct {
	GameID string `json:"game_id"`
	Move   string `json:"move"`
}

type WaitForCPU struct {
	GameID string `json:"game_id"`
}

type NewGameCreated struct {
	GameID    string `json:"game_id"`
	Positions string `json:"positions"`
}

type MoveAccepted struct {
	GameID    string `json:"game_id"`
	Requested string `json:"requested"`
}

type MoveRejected struct {
	GameID    string `json:"game_id"`
	Requested string `json:"requested"`
	Reason    string `json:"reason,omitempty"`
}

type CPUResponse struct {
	GameID    string `json:"game_id"`
	Responded string `json:"responded"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	GameID  string `json:"game_id,omitempty"`
}
