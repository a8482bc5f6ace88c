package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Step identifies one conversational state. Exactly one state is active per
// user; MainMenu is the implicit default when no session exists.
type Step string

const (
	StepMainMenu                Step = "main_menu"
	StepWaitingGovernorate      Step = "waiting_governorate"
	StepWaitingName             Step = "waiting_name"
	StepWaitingExamNo           Step = "waiting_examno"
	StepWaitingBroadcastBody    Step = "waiting_broadcast_body"
	StepWaitingBroadcastConfirm Step = "waiting_broadcast_confirm"
)

// ConversationState is the sealed set of per-user states. Each concrete state
// carries only the payload that is valid for it, so context written by an
// earlier state can never be read under the wrong step.
type ConversationState interface {
	Step() Step
}

type MainMenu struct{}

type WaitingGovernorate struct{}

// WaitingName remembers the governorate chosen in the previous step; it is the
// only state in which that value is meaningful.
type WaitingName struct {
	Governorate string `json:"governorate"`
}

type WaitingExamNo struct{}

type WaitingBroadcastBody struct{}

// WaitingBroadcastConfirm holds the drafted broadcast body pending operator
// confirmation.
type WaitingBroadcastConfirm struct {
	Message string `json:"message"`
}

func (MainMenu) Step() Step                { return StepMainMenu }
func (WaitingGovernorate) Step() Step      { return StepWaitingGovernorate }
func (WaitingName) Step() Step             { return StepWaitingName }
func (WaitingExamNo) Step() Step           { return StepWaitingExamNo }
func (WaitingBroadcastBody) Step() Step    { return StepWaitingBroadcastBody }
func (WaitingBroadcastConfirm) Step() Step { return StepWaitingBroadcastConfirm }

// Session is the persisted per-user conversation record. The store is a dumb
// persistence backend; only the conversation use case assigns State.
type Session struct {
	UserID    int64
	State     ConversationState
	UpdatedAt time.Time
}

// NewSession returns a fresh session at the main menu.
func NewSession(userID int64) *Session {
	return &Session{UserID: userID, State: MainMenu{}, UpdatedAt: time.Now()}
}

// stateEnvelope is the wire form of a ConversationState: a step tag plus the
// payload of the concrete state.
type stateEnvelope struct {
	Step    Step            `json:"step"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalState encodes a ConversationState into its JSON envelope.
func MarshalState(s ConversationState) ([]byte, error) {
	if s == nil {
		s = MainMenu{}
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stateEnvelope{Step: s.Step(), Payload: payload})
}

// UnmarshalState decodes a JSON envelope back into the concrete state. Unknown
// steps are treated as corrupt and reported, letting callers fall back to the
// main menu.
func UnmarshalState(data []byte) (ConversationState, error) {
	if len(data) == 0 {
		return MainMenu{}, nil
	}
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Step {
	case StepMainMenu, "":
		return MainMenu{}, nil
	case StepWaitingGovernorate:
		return WaitingGovernorate{}, nil
	case StepWaitingName:
		var s WaitingName
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return nil, err
		}
		return s, nil
	case StepWaitingExamNo:
		return WaitingExamNo{}, nil
	case StepWaitingBroadcastBody:
		return WaitingBroadcastBody{}, nil
	case StepWaitingBroadcastConfirm:
		var s WaitingBroadcastConfirm
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown conversation step %q", env.Step)
	}
}
