package domain

import (
	"strconv"
	"time"
)

// Phase tracks where a session is in the slot-filling state machine.
type Phase string

const (
	PhaseNoIntent    Phase = "no_intent"
	PhaseSlotFilling Phase = "slot_filling"
	PhaseComplete    Phase = "complete"
)

// SlotKind is the declared value type of a slot in the intent schema.
type SlotKind string

const (
	SlotText   SlotKind = "text"
	SlotNumber SlotKind = "number"
	SlotDate   SlotKind = "date"
)

// SlotValue is a tagged variant; Kind selects which field carries the value.
type SlotValue struct {
	Kind   SlotKind  `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Number float64   `json:"number,omitempty"`
	Date   time.Time `json:"date,omitempty"`
}

func (v SlotValue) String() string {
	switch v.Kind {
	case SlotNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case SlotDate:
		return v.Date.Format("2006-01-02")
	default:
		return v.Text
	}
}

// IntentSpec is the static configuration for one intent. Required slots keep
// their declared order; follow-up selection depends on it.
type IntentSpec struct {
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	RequiredSlots     []string          `json:"required_slots"`
	OptionalSlots     []string          `json:"optional_slots,omitempty"`
	FollowupQuestions map[string]string `json:"followup_questions,omitempty"`
	ResponseTemplate  string            `json:"response_template,omitempty"`
}

// HasSlot reports whether name is in the intent's required or optional set.
func (s IntentSpec) HasSlot(name string) bool {
	for _, r := range s.RequiredSlots {
		if r == name {
			return true
		}
	}
	for _, o := range s.OptionalSlots {
		if o == name {
			return true
		}
	}
	return false
}

// MissingSlots returns required slots absent from filled, in declared order.
func (s IntentSpec) MissingSlots(filled map[string]SlotValue) []string {
	var missing []string
	for _, r := range s.RequiredSlots {
		if _, ok := filled[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// Exchange is one user/bot turn pair in the session history.
type Exchange struct {
	UserText string    `json:"user_text"`
	BotText  string    `json:"bot_text"`
	At       time.Time `json:"at"`
}

// ConversationState is the per-session record owned by the state store.
type ConversationState struct {
	SessionID    string               `json:"session_id"`
	Intent       string               `json:"intent,omitempty"`
	Phase        Phase                `json:"phase"`
	Slots        map[string]SlotValue `json:"slots"`
	TurnCount    int                  `json:"turn_count"`
	History      []Exchange           `json:"history,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	LastActiveAt time.Time            `json:"last_active_at"`
}

// NewConversationState returns a fresh session record.
func NewConversationState(sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		SessionID:    sessionID,
		Phase:        PhaseNoIntent,
		Slots:        map[string]SlotValue{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// store's record.
func (c *ConversationState) Clone() *ConversationState {
	out := *c
	out.Slots = make(map[string]SlotValue, len(c.Slots))
	for k, v := range c.Slots {
		out.Slots[k] = v
	}
	out.History = append([]Exchange(nil), c.History...)
	return &out
}

// AppendHistory appends one exchange, keeping at most limit entries.
func (c *ConversationState) AppendHistory(userText, botText string, at time.Time, limit int) {
	c.History = append(c.History, Exchange{UserText: userText, BotText: botText, At: at})
	if limit > 0 && len(c.History) > limit {
		c.History = c.History[len(c.History)-limit:]
	}
}

// SlotStrings flattens filled slots to their string form for rendering and
// API responses.
func (c *ConversationState) SlotStrings() map[string]string {
	out := make(map[string]string, len(c.Slots))
	for k, v := range c.Slots {
		out[k] = v.String()
	}
	return out
}

// ExtractionResult is the external extractor's output for one message.
// Candidate values per slot are ordered best-first.
type ExtractionResult struct {
	Intent     string              `json:"intent"`
	Confidence float64             `json:"confidence"`
	Slots      map[string][]string `json:"slots,omitempty"`
}

// ActionType enumerates what the engine asks the orchestrator to do next.
type ActionType string

const (
	ActionClarify     ActionType = "clarify"
	ActionAskFollowup ActionType = "ask_followup"
	ActionRespond     ActionType = "respond"
)

// Action is the engine's decision for one turn. Slot and Question are set
// only for ActionAskFollowup.
type Action struct {
	Type     ActionType
	Slot     string
	Question string
}

// HTTP payloads

type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type BotReply struct {
	SessionID     string            `json:"session_id"`
	Text          string            `json:"text"`
	Intent        string            `json:"intent,omitempty"`
	Confidence    float64           `json:"confidence"`
	Slots         map[string]string `json:"slots,omitempty"`
	MissingSlots  []string          `json:"missing_slots,omitempty"`
	NeedsFollowup bool              `json:"needs_followup"`
}
