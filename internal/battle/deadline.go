package battle

import "time"

// Phase windows. Fixed by the product contract; callers schedule their own
// polling around the stored deadlines.
const (
	SelectingWindow = 10 * time.Second
	PlaybackWindow  = 15 * time.Second // per remix, two remixes per battle
	VotingWindow    = 15 * time.Second
)

func selectingDeadline(now time.Time) time.Time { return now.Add(SelectingWindow) }

// playingDeadline covers both sequential playback windows.
func playingDeadline(now time.Time) time.Time { return now.Add(2 * PlaybackWindow) }

func votingDeadline(now time.Time) time.Time { return now.Add(VotingWindow) }

// DeadlinePolicy decides whether an action arriving after a stored phase
// deadline is still accepted. The engine stores deadlines but does not
// enforce them by itself; enforcement is a pluggable caller policy.
type DeadlinePolicy interface {
	Check(now, deadline time.Time) error
}

// AdvisoryDeadlines is the default policy: deadlines are metadata only and
// late actions are accepted.
type AdvisoryDeadlines struct{}

func (AdvisoryDeadlines) Check(now, deadline time.Time) error { return nil }

// StrictDeadlines rejects actions submitted after the phase deadline.
type StrictDeadlines struct{}

func (StrictDeadlines) Check(now, deadline time.Time) error {
	if !deadline.IsZero() && now.After(deadline) {
		return ErrDeadlinePassed
	}
	return nil
}
