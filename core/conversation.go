package core

import "time"

// Speaker identifies which side of the conversation produced a turn.
type Speaker string

const (
	// SpeakerUser marks a turn spoken or typed by the user.
	SpeakerUser Speaker = "user"
	// SpeakerAgent marks a turn produced by the conversational agent.
	SpeakerAgent Speaker = "agent"
)

// ConversationPhase is the coarse position of the call in its script.
type ConversationPhase string

const (
	// PhaseGreeting covers the opening of the conversation.
	PhaseGreeting ConversationPhase = "greeting"
	// PhaseInformationCollection covers structured attribute gathering.
	PhaseInformationCollection ConversationPhase = "information_collection"
	// PhaseOpenEndedQA covers free-form question answering.
	PhaseOpenEndedQA ConversationPhase = "open_ended_qa"
	// PhaseClosing covers the wrap-up of the conversation.
	PhaseClosing ConversationPhase = "closing"
	// PhaseCompleted marks a finished conversation.
	PhaseCompleted ConversationPhase = "completed"
)

// ConversationTurn is a single exchange in the sliding history window.
type ConversationTurn struct {
	Timestamp      time.Time `json:"timestamp"`
	Speaker        Speaker   `json:"speaker"`
	Content        string    `json:"content"`
	NodeID         string    `json:"node_id,omitempty"`
	FunctionCalled string    `json:"function_called,omitempty"`
}

// SpeakThreshold is the turn-taking overlap rule: the agent may speak its
// next utterance only once current TTS playback is at least this complete.
const SpeakThreshold = 0.9

// ConversationContext is the complete conversation state shared between the
// conversational agent and the background executor. It carries no lock of its
// own; the aggregator guards every access with a single per-session mutex.
type ConversationContext struct {
	SessionID string `json:"session_id"`

	// Flow position.
	Phase          ConversationPhase `json:"conversation_phase"`
	CompletedNodes []string          `json:"completed_nodes"`
	PendingNodes   []string          `json:"pending_nodes"`
	CurrentNode    string            `json:"current_node,omitempty"`

	// Collected data.
	UserAttributes map[string]any `json:"user_attributes"`

	// Sliding window of recent turns, oldest first.
	RecentExchanges []ConversationTurn `json:"recent_exchanges"`
	MaxHistoryTurns int                `json:"max_history_turns"`

	// Task handshake: at most one outstanding task id.
	WaitingForTask    string `json:"waiting_for_task,omitempty"`
	LastFillerMessage string `json:"last_filler_message,omitempty"`

	// TTS state for the turn-taking overlap rule.
	TTSFrameProgress float64   `json:"tts_frame_progress"`
	LastTTSTimestamp time.Time `json:"last_tts_timestamp,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationContext creates an empty context for a session. maxHistory
// bounds the sliding window; values < 1 fall back to 5 turns.
func NewConversationContext(sessionID string, maxHistory int) *ConversationContext {
	if maxHistory < 1 {
		maxHistory = 5
	}
	now := time.Now()
	return &ConversationContext{
		SessionID:       sessionID,
		Phase:           PhaseGreeting,
		CompletedNodes:  []string{},
		PendingNodes:    []string{},
		UserAttributes:  map[string]any{},
		RecentExchanges: []ConversationTurn{},
		MaxHistoryTurns: maxHistory,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy of the context safe for independent inspection.
func (c *ConversationContext) Clone() *ConversationContext {
	clone := *c
	clone.CompletedNodes = append([]string{}, c.CompletedNodes...)
	clone.PendingNodes = append([]string{}, c.PendingNodes...)
	clone.RecentExchanges = append([]ConversationTurn{}, c.RecentExchanges...)
	clone.UserAttributes = make(map[string]any, len(c.UserAttributes))
	for k, v := range c.UserAttributes {
		clone.UserAttributes[k] = v
	}
	return &clone
}
