package dispatch

import (
    "context"
    "testing"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/soundclash/soundclash-server/internal/battle"
    "github.com/soundclash/soundclash-server/internal/player"
    "github.com/soundclash/soundclash-server/internal/queue"
    "github.com/soundclash/soundclash-server/internal/reward"
    "github.com/soundclash/soundclash-server/internal/soundcat"
    "github.com/soundclash/soundclash-server/pkg/clashdto"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(func() { mr.Close() })
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })

    battles, err := battle.NewManager(rdb)
    if err != nil { t.Fatalf("NewManager: %v", err) }
    players := player.NewStore(rdb)
    battles.AttachRewarder(players)
    sounds, err := soundcat.New("")
    if err != nil { t.Fatalf("soundcat: %v", err) }
    return New(queue.NewMemoryQueue(), battles, players, sounds)
}

func handleOK(t *testing.T, d *Dispatcher, msg *clashdto.ActionMessage) *clashdto.ActionResult {
    t.Helper()
    res := d.Handle(context.Background(), msg)
    if res == nil { t.Fatalf("%s: nil result", msg.Action) }
    if !res.OK { t.Fatalf("%s: rejected %s %s", msg.Action, res.ErrorCode, res.Error) }
    return res
}

func TestFullBattleFlow(t *testing.T) {
    d := newTestDispatcher(t)

    for _, pid := range []string{"alice", "bob"} {
        res := handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionPlayerJoin, PlayerID: pid})
        if _, ok := res.Data.(*player.Stats); !ok {
            t.Fatalf("player_join data: %T", res.Data)
        }
    }

    // first joiner waits
    res := handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "alice", Mode: "similar"})
    if _, ok := res.Data.(*queue.Entry); !ok {
        t.Fatalf("lone join must return a queue entry, got %T", res.Data)
    }

    // second joiner's own join resolves the pair
    res = handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "bob", Mode: "similar"})
    b, ok := res.Data.(*battle.Battle)
    if !ok { t.Fatalf("pairing join must return the battle, got %T", res.Data) }
    if b.Status != battle.StatusSelecting { t.Fatalf("battle status: %s", b.Status) }
    if b.Player1ID != "alice" || b.Player2ID != "bob" {
        t.Fatalf("pair order: %s vs %s", b.Player1ID, b.Player2ID)
    }
    if b.SoundID == "" || b.Scene == "" {
        t.Fatalf("battle must carry a sound and scene: %+v", b)
    }

    // the waiting side's poll now reports the same battle
    res = handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionCheckQueue, PlayerID: "alice"})
    polled, ok := res.Data.(*battle.Battle)
    if !ok { t.Fatalf("check_queue data: %T", res.Data) }
    if polled.ID != b.ID { t.Fatalf("poll returned battle %s, want %s", polled.ID, b.ID) }

    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionSelectRemix, BattleID: b.ID, PlayerID: "alice", RemixID: "rmx-a"})
    res = handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionSelectRemix, BattleID: b.ID, PlayerID: "bob", RemixID: "rmx-b"})
    if got := res.Data.(*battle.Battle).Status; got != battle.StatusPlayingP1 {
        t.Fatalf("after both selections: %s", got)
    }

    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionAdvanceBattle, BattleID: b.ID})
    res = handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionAdvanceBattle, BattleID: b.ID})
    if got := res.Data.(*battle.Battle).Status; got != battle.StatusVoting {
        t.Fatalf("after two advances: %s", got)
    }

    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionCastVote, BattleID: b.ID, VoterID: "spec-1", VotedFor: "alice", Confidence: 90})
    res = handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionCompleteBattle, BattleID: b.ID})
    final, ok := res.Data.(*reward.Result)
    if !ok { t.Fatalf("complete_battle data: %T", res.Data) }
    if final.WinnerID != "alice" { t.Fatalf("winner: %q", final.WinnerID) }

    // payout landed on the player totals
    res = handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionPlayerJoin, PlayerID: "alice"})
    if st := res.Data.(*player.Stats); st.HypePoints != 155 || st.WinCount != 1 {
        t.Fatalf("alice totals after win: %+v", st)
    }
}

func TestJoinQueueRejectedWhileInBattle(t *testing.T) {
    d := newTestDispatcher(t)
    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "alice"})
    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "bob"})

    res := d.Handle(context.Background(), &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "alice"})
    if res.OK || res.ErrorCode != clashdto.CodePlayerBusy {
        t.Fatalf("join while battling: ok=%v code=%s", res.OK, res.ErrorCode)
    }
}

func TestCheckQueueWhileWaiting(t *testing.T) {
    d := newTestDispatcher(t)
    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "alice"})
    res := handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionCheckQueue, PlayerID: "alice"})
    ack, ok := res.Data.(*clashdto.QueueAck)
    if !ok || !ack.Queued { t.Fatalf("check_queue while alone: %T %+v", res.Data, res.Data) }
}

func TestErrorCodeMapping(t *testing.T) {
    d := newTestDispatcher(t)
    ctx := context.Background()

    res := d.Handle(ctx, &clashdto.ActionMessage{Action: "dance"})
    if res.OK || res.ErrorCode != clashdto.CodeBadRequest {
        t.Fatalf("unknown action: %+v", res)
    }
    res = d.Handle(ctx, &clashdto.ActionMessage{Action: clashdto.ActionAdvanceBattle, BattleID: "btl-missing"})
    if res.OK || res.ErrorCode != clashdto.CodeNotFound {
        t.Fatalf("missing battle: %+v", res)
    }
    res = d.Handle(ctx, &clashdto.ActionMessage{Action: clashdto.ActionCheckQueue, PlayerID: "ghost"})
    if res.OK || res.ErrorCode != clashdto.CodeNotFound {
        t.Fatalf("check without entry: %+v", res)
    }
    res = d.Handle(ctx, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "alice", Mode: "ranked"})
    if res.OK || res.ErrorCode != clashdto.CodeBadRequest {
        t.Fatalf("bad mode: %+v", res)
    }

    // duplicate selection surfaces as DUPLICATE_ACTION
    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "p1"})
    res = handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionJoinQueue, PlayerID: "p2"})
    b := res.Data.(*battle.Battle)
    handleOK(t, d, &clashdto.ActionMessage{Action: clashdto.ActionSelectRemix, BattleID: b.ID, PlayerID: b.Player1ID, RemixID: "rmx"})
    res = d.Handle(ctx, &clashdto.ActionMessage{Action: clashdto.ActionSelectRemix, BattleID: b.ID, PlayerID: b.Player1ID, RemixID: "rmx"})
    if res.OK || res.ErrorCode != clashdto.CodeDuplicateAction {
        t.Fatalf("duplicate selection: %+v", res)
    }
}
