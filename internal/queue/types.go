package queue

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Mode is a categorical matchmaking preference, not a skill rating.
type Mode string

const (
	ModeSimilar  Mode = "similar"
	ModeOpposite Mode = "opposite"
	ModeBalanced Mode = "balanced"
)

// allModes in FIFO scan order for the balanced broadening rule.
var allModes = []Mode{ModeSimilar, ModeOpposite, ModeBalanced}

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimilar:
		return ModeSimilar, nil
	case ModeOpposite:
		return ModeOpposite, nil
	case ModeBalanced, Mode(""):
		return ModeBalanced, nil
	default:
		return "", ErrInvalidMode
	}
}

// Entry is one waiting player. At most one live entry per player.
type Entry struct {
	PlayerID string    `json:"player_id"`
	Mode     Mode      `json:"mode"`
	JoinedAt time.Time `json:"joined_at"`
}

// Pair is a formed match. Player1 is the longer-waiting side.
type Pair struct {
	Player1ID string `json:"player1_id"`
	Player2ID string `json:"player2_id"`
	Mode      Mode   `json:"mode"`
}

var (
	ErrInvalidMode = errors.New("unknown matchmaking mode")
	ErrNotQueued   = errors.New("player has no live queue entry")
	// ErrConflict reports a lost claim race; the caller may poll again.
	ErrConflict = errors.New("concurrent queue modification detected")
)

// MatchQueue resolves FIFO pairs within a mode. Matching is opportunistic:
// TryMatch runs on join and on poll, never on a background loop. The
// claim of both entries is one indivisible step, so a queued player can be
// handed to at most one pair.
type MatchQueue interface {
	// Join enqueues the player. Idempotent: a player with a live entry
	// gets that entry back unchanged.
	Join(ctx context.Context, playerID string, mode Mode) (*Entry, error)
	// TryMatch scans the caller's mode (broadening to every mode for
	// "balanced") and atomically claims both entries. A nil pair with nil
	// error means keep waiting.
	TryMatch(ctx context.Context, playerID string) (*Pair, error)
	// Leave removes the caller's entry. A no-op when not queued.
	Leave(ctx context.Context, playerID string) error
}
