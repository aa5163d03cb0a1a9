package clashdto

// Event is a broadcast payload published to the fan-out gateway. Names and
// fields are the wire contract consumed by spectator clients.
type Event interface {
	EventName() string
}

// Envelope frames an event for transport.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func Wrap(e Event) Envelope { return Envelope{Event: e.EventName(), Data: e} }

type BattleCreated struct {
	BattleID        string `json:"battleId"`
	Player1ID       string `json:"player1Id"`
	Player2ID       string `json:"player2Id"`
	SoundID         string `json:"soundId"`
	Scene           string `json:"scene"`
	SelectingEndsAt int64  `json:"selectingEndsAt"` // unix millis
}

func (BattleCreated) EventName() string { return "battle:created" }

type RemixSelected struct {
	BattleID     string `json:"battleId"`
	PlayerID     string `json:"playerId"`
	RemixID      string `json:"remixId"`
	BothSelected bool   `json:"bothSelected"`
}

func (RemixSelected) EventName() string { return "battle:remixSelected" }

type StateChanged struct {
	BattleID       string `json:"battleId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	PlayingEndsAt  int64  `json:"playingEndsAt,omitempty"` // unix millis
	VotingEndsAt   int64  `json:"votingEndsAt,omitempty"`  // unix millis
}

func (StateChanged) EventName() string { return "battle:stateChanged" }

type VoteCast struct {
	BattleID         string `json:"battleId"`
	VoterID          string `json:"voterId"`
	VotedFor         string `json:"votedFor"`
	Player1VoteCount int    `json:"player1VoteCount"`
	Player2VoteCount int    `json:"player2VoteCount"`
}

func (VoteCast) EventName() string { return "battle:voteCast" }

type BattleCompleted struct {
	BattleID         string `json:"battleId"`
	WinnerID         string `json:"winnerId,omitempty"` // empty on tie
	Player1Votes     int    `json:"player1Votes"`
	Player2Votes     int    `json:"player2Votes"`
	CrowdEnergy      int    `json:"crowdEnergy"`
	Player1HypeEarned int   `json:"player1HypeEarned"`
	Player2HypeEarned int   `json:"player2HypeEarned"`
}

func (BattleCompleted) EventName() string { return "battle:completed" }
