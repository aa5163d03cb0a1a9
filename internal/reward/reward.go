package reward

// Hype payout constants. These are user-facing scores and must not drift.
const (
	BaseHype          = 50
	WinnerBonus       = 100
	ParticipationHype = 25

	energyPerVote  = 10
	maxCrowdEnergy = 100
)

// Result is the computed outcome of a finished battle.
type Result struct {
	WinnerID    string `json:"winner_id,omitempty"` // empty on a tie
	Player1ID   string `json:"player1_id"`
	Player2ID   string `json:"player2_id"`
	Player1Votes int   `json:"player1_votes"`
	Player2Votes int   `json:"player2_votes"`
	CrowdEnergy  int   `json:"crowd_energy"`
	Player1Hype  int   `json:"player1_hype"`
	Player2Hype  int   `json:"player2_hype"`
}

// CrowdEnergy derives the engagement metric from the total vote count,
// capped at 100.
func CrowdEnergy(p1Votes, p2Votes int) int {
	e := (p1Votes + p2Votes) * energyPerVote
	if e > maxCrowdEnergy {
		return maxCrowdEnergy
	}
	return e
}

// Compute maps vote counts onto a winner and the per-player hype payout.
// A tie has no winner; both sides earn the participation payout.
func Compute(player1ID, player2ID string, p1Votes, p2Votes int) Result {
	res := Result{
		Player1ID:    player1ID,
		Player2ID:    player2ID,
		Player1Votes: p1Votes,
		Player2Votes: p2Votes,
		CrowdEnergy:  CrowdEnergy(p1Votes, p2Votes),
	}

	loserHype := BaseHype + ParticipationHype
	winnerHype := BaseHype + WinnerBonus + res.CrowdEnergy/2

	switch {
	case p1Votes > p2Votes:
		res.WinnerID = player1ID
		res.Player1Hype = winnerHype
		res.Player2Hype = loserHype
	case p2Votes > p1Votes:
		res.WinnerID = player2ID
		res.Player1Hype = loserHype
		res.Player2Hype = winnerHype
	default:
		res.Player1Hype = loserHype
		res.Player2Hype = loserHype
	}
	return res
}

// HypeFor returns the payout for one player out of a computed result.
func (r Result) HypeFor(playerID string) int {
	if playerID == r.Player1ID {
		return r.Player1Hype
	}
	if playerID == r.Player2ID {
		return r.Player2Hype
	}
	return 0
}

// Won reports whether playerID is the winner of this result.
func (r Result) Won(playerID string) bool {
	return r.WinnerID != "" && r.WinnerID == playerID
}
