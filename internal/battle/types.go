package battle

import (
	"errors"
	"time"

	"github.com/soundclash/soundclash-server/internal/reward"
)

// Status represents a battle lifecycle phase. Phases only move forward.
type Status string

const (
	StatusSelecting Status = "SELECTING"
	StatusPlayingP1 Status = "PLAYING_P1"
	StatusPlayingP2 Status = "PLAYING_P2"
	StatusVoting    Status = "VOTING"
	StatusCompleted Status = "COMPLETED"
)

// Battle is the persisted state of one head-to-head remix contest.
type Battle struct {
	ID        string `json:"id"`
	Player1ID string `json:"player1_id"`
	Player2ID string `json:"player2_id"`
	SoundID   string `json:"sound_id"`
	Scene     string `json:"scene"`
	Status    Status `json:"status"`

	SelectingEndsAt time.Time `json:"selecting_ends_at"`
	PlayingEndsAt   time.Time `json:"playing_ends_at,omitempty"`
	VotingEndsAt    time.Time `json:"voting_ends_at,omitempty"`

	WinnerID     string `json:"winner_id,omitempty"`
	Player1Votes int    `json:"player1_votes"`
	Player2Votes int    `json:"player2_votes"`
	CrowdEnergy  int    `json:"crowd_energy"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// IsParticipant reports whether playerID is one of the two contestants.
func (b *Battle) IsParticipant(playerID string) bool {
	return playerID != "" && (playerID == b.Player1ID || playerID == b.Player2ID)
}

// Result rebuilds the derived BattleResult from a completed battle's
// snapshot. The reward formula is pure, so this reproduces exactly what the
// completing call computed.
func (b *Battle) Result() *reward.Result {
	if b.Status != StatusCompleted {
		return nil
	}
	res := reward.Compute(b.Player1ID, b.Player2ID, b.Player1Votes, b.Player2Votes)
	return &res
}

// Selection records one player's remix choice, at most one per player per
// battle, never mutated afterwards.
type Selection struct {
	BattleID string `json:"battle_id"`
	PlayerID string `json:"player_id"`
	RemixID  string `json:"remix_id"`
}

// Vote is a spectator ballot, at most one per voter per battle.
type Vote struct {
	VotedFor   string    `json:"voted_for"`
	Confidence int       `json:"confidence"`
	CastAt     time.Time `json:"cast_at"`
}

var (
	ErrBattleNotFound     = errors.New("battle not found")
	ErrInvalidPhase       = errors.New("action not valid in current phase")
	ErrNotParticipant     = errors.New("player is not a battle participant")
	ErrDuplicateSelection = errors.New("player already selected a remix")
	ErrDuplicateVote      = errors.New("voter already voted in this battle")
	ErrSelfVote           = errors.New("participants cannot vote in their own battle")
	ErrPlayerBusy         = errors.New("player already has an active battle")
	ErrDeadlinePassed     = errors.New("phase deadline has passed")
	// ErrConflict signals a lost optimistic-concurrency race on a
	// non-completion path. The engine never retries; callers may.
	ErrConflict = errors.New("concurrent modification detected")
)
