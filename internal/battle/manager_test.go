package battle

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/soundclash/soundclash-server/internal/reward"
    "github.com/soundclash/soundclash-server/pkg/clashdto"
)

type recordingNotifier struct {
    mu     sync.Mutex
    events []clashdto.Event
}

func (r *recordingNotifier) Publish(ctx context.Context, e clashdto.Event) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.events = append(r.events, e)
    return nil
}

func (r *recordingNotifier) names() []string {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := make([]string, len(r.events))
    for i, e := range r.events { out[i] = e.EventName() }
    return out
}

type countingRewarder struct {
    mu    sync.Mutex
    calls map[string]int
    hype  map[string]int
    wins  map[string]bool
}

func newCountingRewarder() *countingRewarder {
    return &countingRewarder{calls: map[string]int{}, hype: map[string]int{}, wins: map[string]bool{}}
}

func (c *countingRewarder) ApplyReward(ctx context.Context, playerID string, hype int, won bool) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.calls[playerID]++
    c.hype[playerID] = hype
    c.wins[playerID] = won
    return nil
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(func() { mr.Close() })
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    m, err := NewManager(rdb, opts...)
    if err != nil { t.Fatalf("NewManager: %v", err) }
    return m
}

// drives a fresh battle to VOTING
func battleInVoting(t *testing.T, m *Manager, p1, p2 string) *Battle {
    t.Helper()
    ctx := context.Background()
    b, err := m.CreateBattle(ctx, p1, p2, "snd-test", "club")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }
    if _, _, err := m.SelectRemix(ctx, b.ID, p1, "rmx-1"); err != nil { t.Fatalf("SelectRemix p1: %v", err) }
    if _, _, err := m.SelectRemix(ctx, b.ID, p2, "rmx-2"); err != nil { t.Fatalf("SelectRemix p2: %v", err) }
    if _, err := m.Advance(ctx, b.ID); err != nil { t.Fatalf("Advance to P2: %v", err) }
    out, err := m.Advance(ctx, b.ID)
    if err != nil { t.Fatalf("Advance to VOTING: %v", err) }
    if out.Status != StatusVoting { t.Fatalf("expected VOTING, got %s", out.Status) }
    return out
}

func TestBattleLifecycleScenario(t *testing.T) {
    base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
    now := base
    rec := &recordingNotifier{}
    m := newTestManager(t, WithClock(func() time.Time { return now }), WithNotifier(rec))
    ctx := context.Background()

    b, err := m.CreateBattle(ctx, "alice", "bob", "snd-neon", "club")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }
    if b.Status != StatusSelecting { t.Fatalf("status: got %s want SELECTING", b.Status) }
    if got := b.SelectingEndsAt; !got.Equal(base.Add(10 * time.Second)) {
        t.Fatalf("selectingEndsAt: got %v want %v", got, base.Add(10*time.Second))
    }

    b1, both, err := m.SelectRemix(ctx, b.ID, "alice", "rmx-a")
    if err != nil { t.Fatalf("SelectRemix alice: %v", err) }
    if both || b1.Status != StatusSelecting {
        t.Fatalf("first selection must not advance: both=%v status=%s", both, b1.Status)
    }

    now = base.Add(3 * time.Second)
    b2, both, err := m.SelectRemix(ctx, b.ID, "bob", "rmx-b")
    if err != nil { t.Fatalf("SelectRemix bob: %v", err) }
    if !both { t.Fatalf("second selection must report both selected") }
    if b2.Status != StatusPlayingP1 {
        t.Fatalf("second selection must advance in the same call: got %s", b2.Status)
    }
    if got := b2.PlayingEndsAt; !got.Equal(now.Add(30 * time.Second)) {
        t.Fatalf("playingEndsAt: got %v want %v", got, now.Add(30*time.Second))
    }

    sels, err := m.Selections(ctx, b.ID)
    if err != nil { t.Fatalf("Selections: %v", err) }
    if len(sels) != 2 { t.Fatalf("expected 2 selections, got %d", len(sels)) }

    b3, err := m.Advance(ctx, b.ID)
    if err != nil { t.Fatalf("Advance: %v", err) }
    if b3.Status != StatusPlayingP2 { t.Fatalf("got %s want PLAYING_P2", b3.Status) }
    if !b3.PlayingEndsAt.Equal(b2.PlayingEndsAt) {
        t.Fatalf("P1->P2 must not recompute playingEndsAt")
    }

    now = base.Add(33 * time.Second)
    b4, err := m.Advance(ctx, b.ID)
    if err != nil { t.Fatalf("Advance: %v", err) }
    if b4.Status != StatusVoting { t.Fatalf("got %s want VOTING", b4.Status) }
    if got := b4.VotingEndsAt; !got.Equal(now.Add(15 * time.Second)) {
        t.Fatalf("votingEndsAt: got %v want %v", got, now.Add(15*time.Second))
    }

    if _, err := m.CastVote(ctx, b.ID, "spec-1", "alice", 80); err != nil {
        t.Fatalf("CastVote: %v", err)
    }
    res, err := m.CompleteBattle(ctx, b.ID)
    if err != nil { t.Fatalf("CompleteBattle: %v", err) }
    if res.WinnerID != "alice" { t.Fatalf("winner: got %q want alice", res.WinnerID) }

    want := []string{"battle:created", "battle:remixSelected", "battle:remixSelected", "battle:stateChanged",
        "battle:stateChanged", "battle:stateChanged", "battle:voteCast", "battle:completed"}
    got := rec.names()
    if len(got) != len(want) { t.Fatalf("event count: got %v want %v", got, want) }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("event[%d]: got %s want %s", i, got[i], want[i]) }
    }
}

func TestCreateBattleRejectsBusyPlayer(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    if _, err := m.CreateBattle(ctx, "p1", "p2", "snd", ""); err != nil { t.Fatalf("CreateBattle: %v", err) }
    if _, err := m.CreateBattle(ctx, "p1", "p3", "snd", ""); !errors.Is(err, ErrPlayerBusy) {
        t.Fatalf("expected ErrPlayerBusy, got %v", err)
    }
    if _, err := m.CreateBattle(ctx, "p4", "p2", "snd", ""); !errors.Is(err, ErrPlayerBusy) {
        t.Fatalf("expected ErrPlayerBusy for second player, got %v", err)
    }
    // the failed claim must not leave p4 locked
    id, err := m.ActiveBattleID(ctx, "p4")
    if err != nil { t.Fatalf("ActiveBattleID: %v", err) }
    if id != "" { t.Fatalf("p4 should hold no battle lock, got %q", id) }
}

func TestDuplicateSelectionRejected(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    b, err := m.CreateBattle(ctx, "p1", "p2", "snd", "")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }
    if _, _, err := m.SelectRemix(ctx, b.ID, "p1", "rmx-z"); err != nil { t.Fatalf("SelectRemix: %v", err) }
    // same remix again is still a rejected duplicate, not replay success
    if _, _, err := m.SelectRemix(ctx, b.ID, "p1", "rmx-z"); !errors.Is(err, ErrDuplicateSelection) {
        t.Fatalf("expected ErrDuplicateSelection, got %v", err)
    }
    sels, err := m.Selections(ctx, b.ID)
    if err != nil { t.Fatalf("Selections: %v", err) }
    if len(sels) != 1 { t.Fatalf("selection count: got %d want 1", len(sels)) }
}

func TestSelectRemixValidation(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    if _, _, err := m.SelectRemix(ctx, "btl-missing", "p1", "rmx"); !errors.Is(err, ErrBattleNotFound) {
        t.Fatalf("expected ErrBattleNotFound, got %v", err)
    }
    b, err := m.CreateBattle(ctx, "p1", "p2", "snd", "")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }
    if _, _, err := m.SelectRemix(ctx, b.ID, "stranger", "rmx"); !errors.Is(err, ErrNotParticipant) {
        t.Fatalf("expected ErrNotParticipant, got %v", err)
    }
}

func TestAdvanceRejectedOutsideItsPhases(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    b, err := m.CreateBattle(ctx, "p1", "p2", "snd", "")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }
    if _, err := m.Advance(ctx, b.ID); !errors.Is(err, ErrInvalidPhase) {
        t.Fatalf("Advance on SELECTING: expected ErrInvalidPhase, got %v", err)
    }
    if _, err := m.Advance(ctx, "btl-missing"); !errors.Is(err, ErrBattleNotFound) {
        t.Fatalf("Advance on missing battle: expected ErrBattleNotFound, got %v", err)
    }
}

func TestAdvanceFromVotingDelegatesToComplete(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    b := battleInVoting(t, m, "p1", "p2")
    out, err := m.Advance(ctx, b.ID)
    if err != nil { t.Fatalf("Advance from VOTING: %v", err) }
    if out.Status != StatusCompleted { t.Fatalf("got %s want COMPLETED", out.Status) }
    if _, err := m.Advance(ctx, b.ID); !errors.Is(err, ErrInvalidPhase) {
        t.Fatalf("Advance on COMPLETED: expected ErrInvalidPhase, got %v", err)
    }
}

func TestCastVoteIntegrity(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    b, err := m.CreateBattle(ctx, "p1", "p2", "snd", "")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }
    if _, err := m.CastVote(ctx, b.ID, "spec-1", "p1", 50); !errors.Is(err, ErrInvalidPhase) {
        t.Fatalf("vote before VOTING: expected ErrInvalidPhase, got %v", err)
    }

    v := battleInVoting(t, m, "p3", "p4")
    if _, err := m.CastVote(ctx, v.ID, "p3", "p4", 50); !errors.Is(err, ErrSelfVote) {
        t.Fatalf("participant vote: expected ErrSelfVote, got %v", err)
    }
    if _, err := m.CastVote(ctx, v.ID, "spec-1", "p9", 50); !errors.Is(err, ErrNotParticipant) {
        t.Fatalf("vote for stranger: expected ErrNotParticipant, got %v", err)
    }
    if _, err := m.CastVote(ctx, v.ID, "spec-1", "p3", 50); err != nil {
        t.Fatalf("CastVote: %v", err)
    }
    if _, err := m.CastVote(ctx, v.ID, "spec-1", "p4", 90); !errors.Is(err, ErrDuplicateVote) {
        t.Fatalf("second vote: expected ErrDuplicateVote, got %v", err)
    }
    p1c, p2c, err := m.Tally(ctx, v.ID)
    if err != nil { t.Fatalf("Tally: %v", err) }
    if p1c != 1 || p2c != 0 { t.Fatalf("tally: got %d/%d want 1/0", p1c, p2c) }
}

func TestCompleteBattleAppliesRewardOnce(t *testing.T) {
    rewards := newCountingRewarder()
    m := newTestManager(t)
    m.AttachRewarder(rewards)
    ctx := context.Background()
    b := battleInVoting(t, m, "p1", "p2")

    for i := 0; i < 7; i++ {
        if _, err := m.CastVote(ctx, b.ID, voterID(i), "p1", 60); err != nil { t.Fatalf("vote: %v", err) }
    }
    for i := 7; i < 10; i++ {
        if _, err := m.CastVote(ctx, b.ID, voterID(i), "p2", 60); err != nil { t.Fatalf("vote: %v", err) }
    }

    res, err := m.CompleteBattle(ctx, b.ID)
    if err != nil { t.Fatalf("CompleteBattle: %v", err) }
    if res.WinnerID != "p1" || res.CrowdEnergy != 100 {
        t.Fatalf("result: winner=%q energy=%d", res.WinnerID, res.CrowdEnergy)
    }
    if res.Player1Hype != 200 || res.Player2Hype != 75 {
        t.Fatalf("hype: got %d/%d want 200/75", res.Player1Hype, res.Player2Hype)
    }

    // replay is success with the stored result, not a second payout
    again, err := m.CompleteBattle(ctx, b.ID)
    if err != nil { t.Fatalf("CompleteBattle replay: %v", err) }
    if *again != *res { t.Fatalf("replay result mismatch: %+v vs %+v", again, res) }
    if rewards.calls["p1"] != 1 || rewards.calls["p2"] != 1 {
        t.Fatalf("reward applications: got %d/%d want 1/1", rewards.calls["p1"], rewards.calls["p2"])
    }
    if rewards.hype["p1"] != 200 || !rewards.wins["p1"] || rewards.wins["p2"] {
        t.Fatalf("reward payload wrong: %+v %+v", rewards.hype, rewards.wins)
    }

    // both players free again
    for _, pid := range []string{"p1", "p2"} {
        id, err := m.ActiveBattleID(ctx, pid)
        if err != nil { t.Fatalf("ActiveBattleID: %v", err) }
        if id != "" { t.Fatalf("%s still locked to %q", pid, id) }
    }

    final, err := m.Get(ctx, b.ID)
    if err != nil { t.Fatalf("Get: %v", err) }
    if final.Status != StatusCompleted || final.Player1Votes != 7 || final.Player2Votes != 3 {
        t.Fatalf("final snapshot wrong: %+v", final)
    }
}

func TestCompleteBattleConcurrent(t *testing.T) {
    rewards := newCountingRewarder()
    m := newTestManager(t)
    m.AttachRewarder(rewards)
    ctx := context.Background()
    b := battleInVoting(t, m, "p1", "p2")
    for i := 0; i < 4; i++ {
        if _, err := m.CastVote(ctx, b.ID, voterID(i), "p2", 70); err != nil { t.Fatalf("vote: %v", err) }
    }

    const n = 8
    results := make([]*reward.Result, n)
    errs := make([]error, n)
    var wg sync.WaitGroup
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            results[i], errs[i] = m.CompleteBattle(ctx, b.ID)
        }(i)
    }
    wg.Wait()

    for i := 0; i < n; i++ {
        if errs[i] != nil { t.Fatalf("caller %d: %v", i, errs[i]) }
        if results[i] == nil { t.Fatalf("caller %d: nil result", i) }
        if *results[i] != *results[0] {
            t.Fatalf("caller %d result diverges: %+v vs %+v", i, results[i], results[0])
        }
    }
    if rewards.calls["p1"] != 1 || rewards.calls["p2"] != 1 {
        t.Fatalf("reward must apply exactly once per player, got %d/%d", rewards.calls["p1"], rewards.calls["p2"])
    }
}

func TestCompleteBattleTie(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    b := battleInVoting(t, m, "p1", "p2")
    for i := 0; i < 4; i++ {
        if _, err := m.CastVote(ctx, b.ID, voterID(i), "p1", 50); err != nil { t.Fatalf("vote: %v", err) }
    }
    for i := 4; i < 8; i++ {
        if _, err := m.CastVote(ctx, b.ID, voterID(i), "p2", 50); err != nil { t.Fatalf("vote: %v", err) }
    }
    res, err := m.CompleteBattle(ctx, b.ID)
    if err != nil { t.Fatalf("CompleteBattle: %v", err) }
    if res.WinnerID != "" { t.Fatalf("tie must have no winner, got %q", res.WinnerID) }
    if res.CrowdEnergy != 80 { t.Fatalf("crowd energy: got %d want 80", res.CrowdEnergy) }
    if res.Player1Hype != 75 || res.Player2Hype != 75 {
        t.Fatalf("tie hype: got %d/%d want 75/75", res.Player1Hype, res.Player2Hype)
    }
}

func TestStrictDeadlinePolicy(t *testing.T) {
    base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
    now := base
    m := newTestManager(t,
        WithClock(func() time.Time { return now }),
        WithDeadlinePolicy(StrictDeadlines{}),
    )
    ctx := context.Background()
    b, err := m.CreateBattle(ctx, "p1", "p2", "snd", "")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }

    now = base.Add(11 * time.Second) // past selectingEndsAt
    if _, _, err := m.SelectRemix(ctx, b.ID, "p1", "rmx"); !errors.Is(err, ErrDeadlinePassed) {
        t.Fatalf("expected ErrDeadlinePassed, got %v", err)
    }
}

func TestAdvisoryDeadlineAcceptsLateActions(t *testing.T) {
    base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
    now := base
    m := newTestManager(t, WithClock(func() time.Time { return now }))
    ctx := context.Background()
    b, err := m.CreateBattle(ctx, "p1", "p2", "snd", "")
    if err != nil { t.Fatalf("CreateBattle: %v", err) }

    now = base.Add(time.Hour) // way past every deadline
    if _, _, err := m.SelectRemix(ctx, b.ID, "p1", "rmx"); err != nil {
        t.Fatalf("advisory policy must accept late selection: %v", err)
    }
}

func voterID(i int) string { return "spec-" + string(rune('a'+i)) }
