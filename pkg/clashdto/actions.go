package clashdto

// Action names accepted from the upstream request layer.
const (
	ActionPlayerJoin    = "player_join"
	ActionJoinQueue     = "join_queue"
	ActionCheckQueue    = "check_queue"
	ActionLeaveQueue    = "leave_queue"
	ActionSelectRemix   = "select_remix"
	ActionAdvanceBattle = "advance_battle"
	ActionCastVote      = "cast_vote"
	ActionCompleteBattle = "complete_battle"
)

// ActionMessage is one inbound trigger from the gateway. Fields are a union
// over all actions; the dispatcher validates per action.
type ActionMessage struct {
	Action     string `json:"action"`
	RequestID  string `json:"requestId,omitempty"`
	PlayerID   string `json:"playerId,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Scene      string `json:"scene,omitempty"`
	BattleID   string `json:"battleId,omitempty"`
	RemixID    string `json:"remixId,omitempty"`
	VoterID    string `json:"voterId,omitempty"`
	VotedFor   string `json:"votedFor,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
}

// QueueAck tells a polling player they are still waiting.
type QueueAck struct {
	Queued bool `json:"queued"`
}

// ActionResult acknowledges one processed action back to the gateway.
type ActionResult struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Data      any    `json:"data,omitempty"`
}
