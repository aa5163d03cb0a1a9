package battle

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/soundclash/soundclash-server/internal/notify"
    "github.com/soundclash/soundclash-server/internal/obslog"
    "github.com/soundclash/soundclash-server/internal/reward"
    "github.com/soundclash/soundclash-server/pkg/clashdto"
)

const ttlBattle = 24 * time.Hour

// PlayerRewarder applies the one-time hype payout after a battle completes.
type PlayerRewarder interface {
    ApplyReward(ctx context.Context, playerID string, hype int, won bool) error
}

// Manager owns the battle phase state machine. Every operation is a single
// WATCH-guarded read-check-write against the battle key, so concurrent or
// duplicated external triggers cannot interleave.
type Manager struct {
    rdb      *redis.Client
    policy   DeadlinePolicy
    notifier notify.Notifier
    rewards  PlayerRewarder
    repo     *Repository
    now      func() time.Time
}

type Option func(*Manager)

func WithDeadlinePolicy(p DeadlinePolicy) Option {
    return func(m *Manager) { if p != nil { m.policy = p } }
}

func WithNotifier(n notify.Notifier) Option {
    return func(m *Manager) { if n != nil { m.notifier = n } }
}

// WithClock overrides time acquisition; tests pin deadlines with it.
func WithClock(now func() time.Time) Option {
    return func(m *Manager) { if now != nil { m.now = now } }
}

func NewManager(rdb *redis.Client, opts ...Option) (*Manager, error) {
    if rdb == nil { return nil, fmt.Errorf("redis client required for battle manager") }
    m := &Manager{rdb: rdb, policy: AdvisoryDeadlines{}, notifier: notify.LogNotifier{}, now: time.Now}
    for _, opt := range opts { opt(m) }
    return m, nil
}

// AttachRepository wires the optional Postgres archive for completed battles.
func (m *Manager) AttachRepository(r *Repository) {
    if m != nil { m.repo = r }
}

// AttachRewarder wires the player stat store that receives the payout.
func (m *Manager) AttachRewarder(r PlayerRewarder) {
    if m != nil { m.rewards = r }
}

// CreateBattle allocates the aggregate in SELECTING with both players bound
// to it. A player may be in at most one live battle; the per-player lock is
// claimed with SetNX so two concurrent creates cannot share a player.
func (m *Manager) CreateBattle(ctx context.Context, player1ID, player2ID, soundID, scene string) (*Battle, error) {
    player1ID, player2ID = strings.TrimSpace(player1ID), strings.TrimSpace(player2ID)
    if player1ID == "" || player2ID == "" || player1ID == player2ID {
        return nil, fmt.Errorf("invalid participants")
    }
    if strings.TrimSpace(soundID) == "" { return nil, fmt.Errorf("sound id required") }

    now := m.now()
    b := &Battle{
        ID:              "btl-" + uuid.NewString(),
        Player1ID:       player1ID,
        Player2ID:       player2ID,
        SoundID:         strings.TrimSpace(soundID),
        Scene:           strings.TrimSpace(scene),
        Status:          StatusSelecting,
        SelectingEndsAt: selectingDeadline(now),
        CreatedAt:       now,
        UpdatedAt:       now,
    }

    ok, err := m.rdb.SetNX(ctx, activeKey(player1ID), b.ID, ttlBattle).Result()
    if err != nil { return nil, err }
    if !ok { return nil, ErrPlayerBusy }
    ok, err = m.rdb.SetNX(ctx, activeKey(player2ID), b.ID, ttlBattle).Result()
    if err != nil || !ok {
        _ = m.rdb.Del(ctx, activeKey(player1ID)).Err()
        if err != nil { return nil, err }
        return nil, ErrPlayerBusy
    }
    if err := m.save(ctx, b); err != nil {
        _ = m.rdb.Del(ctx, activeKey(player1ID), activeKey(player2ID)).Err()
        return nil, err
    }

    obslog.L().Info("battle_create",
        zap.String("battle_id", b.ID),
        zap.String("player1_id", b.Player1ID),
        zap.String("player2_id", b.Player2ID),
        zap.String("sound_id", b.SoundID),
        zap.String("scene", b.Scene),
    )
    m.publish(ctx, clashdto.BattleCreated{
        BattleID:        b.ID,
        Player1ID:       b.Player1ID,
        Player2ID:       b.Player2ID,
        SoundID:         b.SoundID,
        Scene:           b.Scene,
        SelectingEndsAt: b.SelectingEndsAt.UnixMilli(),
    })
    return b, nil
}

// SelectRemix records one participant's remix pick. Strict once-only: a
// second call by the same player is rejected even with the same remix. The
// call landing the second distinct pick performs SELECTING -> PLAYING_P1 in
// the same transaction.
func (m *Manager) SelectRemix(ctx context.Context, battleID, playerID, remixID string) (*Battle, bool, error) {
    playerID, remixID = strings.TrimSpace(playerID), strings.TrimSpace(remixID)
    if playerID == "" || remixID == "" { return nil, false, fmt.Errorf("invalid selection arguments") }

    bKey, sKey := battleKey(battleID), selectionsKey(battleID)
    var out *Battle
    var both bool
    err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        cur, err := loadBattle(ctx, tx, battleID)
        if err != nil { return err }
        if cur.Status != StatusSelecting { return ErrInvalidPhase }
        if !cur.IsParticipant(playerID) { return ErrNotParticipant }
        now := m.now()
        if err := m.policy.Check(now, cur.SelectingEndsAt); err != nil { return err }
        exists, err := tx.HExists(ctx, sKey, playerID).Result()
        if err != nil { return err }
        if exists { return ErrDuplicateSelection }
        n, err := tx.HLen(ctx, sKey).Result()
        if err != nil { return err }

        cur.UpdatedAt = now
        if n >= 1 {
            both = true
            cur.Status = StatusPlayingP1
            cur.PlayingEndsAt = playingDeadline(now)
        }

        raw, err := json.Marshal(&Selection{BattleID: cur.ID, PlayerID: playerID, RemixID: remixID})
        if err != nil { return err }
        bRaw, err := json.Marshal(cur)
        if err != nil { return err }
        pipe := tx.TxPipeline()
        pipe.HSet(ctx, sKey, playerID, raw)
        pipe.Expire(ctx, sKey, ttlBattle)
        pipe.Set(ctx, bKey, bRaw, ttlBattle)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        out = cur
        return nil
    }, bKey, sKey)
    if err != nil {
        if errors.Is(err, redis.TxFailedErr) { return nil, false, ErrConflict }
        return nil, false, err
    }

    obslog.L().Info("battle_select",
        zap.String("battle_id", out.ID),
        zap.String("player_id", playerID),
        zap.String("remix_id", remixID),
        zap.Bool("both_selected", both),
    )
    m.publish(ctx, clashdto.RemixSelected{BattleID: out.ID, PlayerID: playerID, RemixID: remixID, BothSelected: both})
    if both {
        m.publish(ctx, clashdto.StateChanged{
            BattleID:       out.ID,
            PreviousStatus: string(StatusSelecting),
            NewStatus:      string(StatusPlayingP1),
            PlayingEndsAt:  out.PlayingEndsAt.UnixMilli(),
        })
    }
    return out, both, nil
}

// sentinel: Advance observed VOTING and must hand over to CompleteBattle.
var errDelegateComplete = errors.New("delegate_complete")

// Advance moves the battle one phase forward. Valid from PLAYING_P1,
// PLAYING_P2 and VOTING only; SELECTING advances via the second remix
// selection and COMPLETED is terminal.
func (m *Manager) Advance(ctx context.Context, battleID string) (*Battle, error) {
    bKey := battleKey(battleID)
    var out *Battle
    var prev Status
    err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        cur, err := loadBattle(ctx, tx, battleID)
        if err != nil { return err }
        prev = cur.Status
        now := m.now()
        switch cur.Status {
        case StatusPlayingP1:
            if err := m.policy.Check(now, cur.PlayingEndsAt); err != nil { return err }
            cur.Status = StatusPlayingP2
        case StatusPlayingP2:
            if err := m.policy.Check(now, cur.PlayingEndsAt); err != nil { return err }
            cur.Status = StatusVoting
            cur.VotingEndsAt = votingDeadline(now)
        case StatusVoting:
            return errDelegateComplete
        default:
            return ErrInvalidPhase
        }
        cur.UpdatedAt = now
        raw, err := json.Marshal(cur)
        if err != nil { return err }
        pipe := tx.TxPipeline()
        pipe.Set(ctx, bKey, raw, ttlBattle)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        out = cur
        return nil
    }, bKey)
    if err != nil {
        if errors.Is(err, errDelegateComplete) {
            if _, cerr := m.CompleteBattle(ctx, battleID); cerr != nil { return nil, cerr }
            return m.Get(ctx, battleID)
        }
        if errors.Is(err, redis.TxFailedErr) { return nil, ErrConflict }
        return nil, err
    }

    obslog.L().Info("battle_advance",
        zap.String("battle_id", out.ID),
        zap.String("from", string(prev)),
        zap.String("to", string(out.Status)),
    )
    evt := clashdto.StateChanged{BattleID: out.ID, PreviousStatus: string(prev), NewStatus: string(out.Status)}
    if out.Status == StatusVoting { evt.VotingEndsAt = out.VotingEndsAt.UnixMilli() }
    m.publish(ctx, evt)
    return out, nil
}

// CastVote stores a spectator ballot. One vote per voter per battle,
// participants excluded; the running count snapshot on the battle moves in
// the same transaction as the vote row.
func (m *Manager) CastVote(ctx context.Context, battleID, voterID, votedFor string, confidence int) (*Battle, error) {
    voterID, votedFor = strings.TrimSpace(voterID), strings.TrimSpace(votedFor)
    if voterID == "" { return nil, fmt.Errorf("invalid voter") }

    bKey, vKey := battleKey(battleID), votesKey(battleID)
    var out *Battle
    err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        cur, err := loadBattle(ctx, tx, battleID)
        if err != nil { return err }
        if cur.Status != StatusVoting { return ErrInvalidPhase }
        if cur.IsParticipant(voterID) { return ErrSelfVote }
        if !cur.IsParticipant(votedFor) { return ErrNotParticipant }
        now := m.now()
        if err := m.policy.Check(now, cur.VotingEndsAt); err != nil { return err }
        exists, err := tx.HExists(ctx, vKey, voterID).Result()
        if err != nil { return err }
        if exists { return ErrDuplicateVote }

        if votedFor == cur.Player1ID { cur.Player1Votes++ } else { cur.Player2Votes++ }
        cur.UpdatedAt = now
        raw, err := json.Marshal(&Vote{VotedFor: votedFor, Confidence: confidence, CastAt: now})
        if err != nil { return err }
        bRaw, err := json.Marshal(cur)
        if err != nil { return err }
        pipe := tx.TxPipeline()
        pipe.HSet(ctx, vKey, voterID, raw)
        pipe.Expire(ctx, vKey, ttlBattle)
        pipe.Set(ctx, bKey, bRaw, ttlBattle)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        out = cur
        return nil
    }, bKey, vKey)
    if err != nil {
        if errors.Is(err, redis.TxFailedErr) { return nil, ErrConflict }
        return nil, err
    }

    obslog.L().Info("battle_vote",
        zap.String("battle_id", out.ID),
        zap.String("voter_id", voterID),
        zap.String("voted_for", votedFor),
        zap.Int("player1_votes", out.Player1Votes),
        zap.Int("player2_votes", out.Player2Votes),
    )
    m.publish(ctx, clashdto.VoteCast{
        BattleID:         out.ID,
        VoterID:          voterID,
        VotedFor:         votedFor,
        Player1VoteCount: out.Player1Votes,
        Player2VoteCount: out.Player2Votes,
    })
    return out, nil
}

// sentinel: the battle was already completed; res carries the stored result.
var errAlreadyCompleted = errors.New("already_completed")

// CompleteBattle tallies the persisted votes, computes the result and moves
// VOTING -> COMPLETED under CAS. Exactly one caller wins the transition and
// applies the reward; everyone else gets the previously stored result back
// as success.
func (m *Manager) CompleteBattle(ctx context.Context, battleID string) (*reward.Result, error) {
    bKey, vKey := battleKey(battleID), votesKey(battleID)
    var res *reward.Result
    var completed *Battle
    err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        cur, err := loadBattle(ctx, tx, battleID)
        if err != nil { return err }
        if cur.Status == StatusCompleted {
            res = cur.Result()
            return errAlreadyCompleted
        }
        if cur.Status != StatusVoting { return ErrInvalidPhase }

        // authoritative tally straight from the vote rows
        entries, err := tx.HGetAll(ctx, vKey).Result()
        if err != nil { return err }
        p1c, p2c := countVotes(cur, entries)
        r := reward.Compute(cur.Player1ID, cur.Player2ID, p1c, p2c)

        now := m.now()
        cur.Status = StatusCompleted
        cur.WinnerID = r.WinnerID
        cur.Player1Votes, cur.Player2Votes = p1c, p2c
        cur.CrowdEnergy = r.CrowdEnergy
        cur.CompletedAt = now
        cur.UpdatedAt = now

        bRaw, err := json.Marshal(cur)
        if err != nil { return err }
        pipe := tx.TxPipeline()
        pipe.Set(ctx, bKey, bRaw, ttlBattle)
        pipe.Del(ctx, activeKey(cur.Player1ID), activeKey(cur.Player2ID))
        if _, err := pipe.Exec(ctx); err != nil { return err }
        res = &r
        completed = cur
        return nil
    }, bKey, vKey)
    if err != nil {
        if errors.Is(err, errAlreadyCompleted) { return res, nil }
        if errors.Is(err, redis.TxFailedErr) {
            // lost the CAS race; if the winner finished the battle, hand
            // their result out instead of failing the caller
            b, gerr := m.Get(ctx, battleID)
            if gerr == nil && b.Status == StatusCompleted { return b.Result(), nil }
            return nil, ErrConflict
        }
        return nil, err
    }

    // one-time side effects, executed only by the CAS winner
    m.applyRewards(ctx, completed, res)
    if m.repo != nil {
        if rerr := m.repo.SaveResult(ctx, completed, res); rerr != nil {
            obslog.L().Error("battle_archive_error", zap.String("battle_id", completed.ID), zap.Error(rerr))
        }
    }
    obslog.L().Info("battle_complete",
        zap.String("battle_id", completed.ID),
        zap.String("winner_id", res.WinnerID),
        zap.Int("player1_votes", res.Player1Votes),
        zap.Int("player2_votes", res.Player2Votes),
        zap.Int("crowd_energy", res.CrowdEnergy),
    )
    m.publish(ctx, clashdto.BattleCompleted{
        BattleID:          completed.ID,
        WinnerID:          res.WinnerID,
        Player1Votes:      res.Player1Votes,
        Player2Votes:      res.Player2Votes,
        CrowdEnergy:       res.CrowdEnergy,
        Player1HypeEarned: res.Player1Hype,
        Player2HypeEarned: res.Player2Hype,
    })
    return res, nil
}

// Get loads a battle by id.
func (m *Manager) Get(ctx context.Context, battleID string) (*Battle, error) {
    return loadBattle(ctx, m.rdb, battleID)
}

// ActiveBattleID returns the id of the player's live battle, or "" if none.
func (m *Manager) ActiveBattleID(ctx context.Context, playerID string) (string, error) {
    id, err := m.rdb.Get(ctx, activeKey(strings.TrimSpace(playerID))).Result()
    if err == redis.Nil { return "", nil }
    if err != nil { return "", err }
    return id, nil
}

// Selections returns the recorded remix picks for a battle.
func (m *Manager) Selections(ctx context.Context, battleID string) ([]Selection, error) {
    entries, err := m.rdb.HGetAll(ctx, selectionsKey(battleID)).Result()
    if err != nil { return nil, err }
    out := make([]Selection, 0, len(entries))
    for _, raw := range entries {
        var s Selection
        if jerr := json.Unmarshal([]byte(raw), &s); jerr != nil { continue }
        out = append(out, s)
    }
    return out, nil
}

// Tally counts the persisted votes per participant.
func (m *Manager) Tally(ctx context.Context, battleID string) (int, int, error) {
    cur, err := m.Get(ctx, battleID)
    if err != nil { return 0, 0, err }
    entries, err := m.rdb.HGetAll(ctx, votesKey(battleID)).Result()
    if err != nil { return 0, 0, err }
    p1c, p2c := countVotes(cur, entries)
    return p1c, p2c, nil
}

// Helpers

func (m *Manager) applyRewards(ctx context.Context, b *Battle, res *reward.Result) {
    if m.rewards == nil { return }
    for _, pid := range []string{b.Player1ID, b.Player2ID} {
        if err := m.rewards.ApplyReward(ctx, pid, res.HypeFor(pid), res.Won(pid)); err != nil {
            obslog.L().Error("battle_reward_error", zap.String("battle_id", b.ID), zap.String("player_id", pid), zap.Error(err))
        }
    }
}

func (m *Manager) publish(ctx context.Context, e clashdto.Event) {
    if m.notifier == nil { return }
    _ = m.notifier.Publish(ctx, e)
}

func (m *Manager) save(ctx context.Context, b *Battle) error {
    raw, err := json.Marshal(b)
    if err != nil { return err }
    return m.rdb.Set(ctx, battleKey(b.ID), raw, ttlBattle).Err()
}

func loadBattle(ctx context.Context, c redis.Cmdable, id string) (*Battle, error) {
    raw, err := c.Get(ctx, battleKey(id)).Bytes()
    if err == redis.Nil { return nil, ErrBattleNotFound }
    if err != nil { return nil, err }
    var b Battle
    if err := json.Unmarshal(raw, &b); err != nil { return nil, err }
    return &b, nil
}

func countVotes(b *Battle, entries map[string]string) (int, int) {
    p1c, p2c := 0, 0
    for _, raw := range entries {
        var v Vote
        if err := json.Unmarshal([]byte(raw), &v); err != nil { continue }
        if v.VotedFor == b.Player1ID { p1c++ } else if v.VotedFor == b.Player2ID { p2c++ }
    }
    return p1c, p2c
}

func battleKey(id string) string       { return "battle:" + strings.TrimSpace(id) }
func selectionsKey(id string) string   { return battleKey(id) + ":selections" }
func votesKey(id string) string        { return battleKey(id) + ":votes" }
func activeKey(playerID string) string { return "battle:active:" + strings.TrimSpace(playerID) }
