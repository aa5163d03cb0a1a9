package dispatch

import (
    "context"
    "errors"
    "strings"

    "go.uber.org/zap"

    "github.com/soundclash/soundclash-server/internal/battle"
    "github.com/soundclash/soundclash-server/internal/obslog"
    "github.com/soundclash/soundclash-server/internal/player"
    "github.com/soundclash/soundclash-server/internal/queue"
    "github.com/soundclash/soundclash-server/internal/soundcat"
    "github.com/soundclash/soundclash-server/pkg/clashdto"
)

// Dispatcher routes inbound gateway actions onto the engine. It owns no
// loop and keeps no per-request state; every call is one short-lived unit
// of work.
type Dispatcher struct {
    queue   queue.MatchQueue
    battles *battle.Manager
    players *player.Store
    sounds  *soundcat.Catalog
}

func New(q queue.MatchQueue, battles *battle.Manager, players *player.Store, sounds *soundcat.Catalog) *Dispatcher {
    return &Dispatcher{queue: q, battles: battles, players: players, sounds: sounds}
}

// Handle processes one action and returns the ack for its requester.
// Engine rejections come back as typed codes, never as silent drops.
func (d *Dispatcher) Handle(ctx context.Context, msg *clashdto.ActionMessage) *clashdto.ActionResult {
    if msg == nil { return nil }
    res := &clashdto.ActionResult{Action: msg.Action, RequestID: msg.RequestID}

    var data any
    var err error
    switch msg.Action {
    case clashdto.ActionPlayerJoin:
        data, err = d.playerJoin(ctx, msg)
    case clashdto.ActionJoinQueue:
        data, err = d.joinQueue(ctx, msg)
    case clashdto.ActionCheckQueue:
        data, err = d.checkQueue(ctx, msg)
    case clashdto.ActionLeaveQueue:
        err = d.queue.Leave(ctx, msg.PlayerID)
    case clashdto.ActionSelectRemix:
        data, _, err = d.battles.SelectRemix(ctx, msg.BattleID, msg.PlayerID, msg.RemixID)
    case clashdto.ActionAdvanceBattle:
        data, err = d.battles.Advance(ctx, msg.BattleID)
    case clashdto.ActionCastVote:
        data, err = d.battles.CastVote(ctx, msg.BattleID, msg.VoterID, msg.VotedFor, msg.Confidence)
    case clashdto.ActionCompleteBattle:
        data, err = d.battles.CompleteBattle(ctx, msg.BattleID)
    default:
        res.ErrorCode = clashdto.CodeBadRequest
        res.Error = "unknown action: " + msg.Action
        return res
    }

    if err != nil {
        res.ErrorCode = errCode(err)
        res.Error = err.Error()
        obslog.L().Warn("action_rejected",
            zap.String("action", msg.Action),
            zap.String("code", res.ErrorCode),
            zap.String("player_id", msg.PlayerID),
            zap.String("battle_id", msg.BattleID),
        )
        return res
    }
    res.OK = true
    res.Data = data
    return res
}

func (d *Dispatcher) playerJoin(ctx context.Context, msg *clashdto.ActionMessage) (any, error) {
    if err := d.players.Ensure(ctx, msg.PlayerID); err != nil { return nil, err }
    return d.players.Get(ctx, msg.PlayerID)
}

func (d *Dispatcher) joinQueue(ctx context.Context, msg *clashdto.ActionMessage) (any, error) {
    if id, err := d.battles.ActiveBattleID(ctx, msg.PlayerID); err != nil {
        return nil, err
    } else if id != "" {
        return nil, battle.ErrPlayerBusy
    }
    mode, err := queue.ParseMode(msg.Mode)
    if err != nil { return nil, err }
    entry, err := d.queue.Join(ctx, msg.PlayerID, mode)
    if err != nil { return nil, err }
    if b, err := d.resolve(ctx, msg.PlayerID, msg.Scene); err != nil {
        return nil, err
    } else if b != nil {
        return b, nil
    }
    return entry, nil
}

func (d *Dispatcher) checkQueue(ctx context.Context, msg *clashdto.ActionMessage) (any, error) {
    // the opponent's poll may already have formed the battle
    if id, err := d.battles.ActiveBattleID(ctx, msg.PlayerID); err != nil {
        return nil, err
    } else if id != "" {
        return d.battles.Get(ctx, id)
    }
    if b, err := d.resolve(ctx, msg.PlayerID, msg.Scene); err != nil {
        return nil, err
    } else if b != nil {
        return b, nil
    }
    return &clashdto.QueueAck{Queued: true}, nil
}

// resolve attempts a match for the caller and creates the battle when a
// pair forms. A lost claim race is reported as CONFLICT; the caller simply
// polls again.
func (d *Dispatcher) resolve(ctx context.Context, playerID, scene string) (*battle.Battle, error) {
    pair, err := d.queue.TryMatch(ctx, playerID)
    if err != nil { return nil, err }
    if pair == nil { return nil, nil }
    sound, err := d.sounds.PickForScene(scene)
    if err != nil { return nil, err }
    if strings.TrimSpace(scene) == "" && len(sound.Scenes) > 0 {
        scene = sound.Scenes[0]
    }
    b, err := d.battles.CreateBattle(ctx, pair.Player1ID, pair.Player2ID, sound.ID, scene)
    if err != nil {
        obslog.L().Error("match_create_error",
            zap.String("player1_id", pair.Player1ID),
            zap.String("player2_id", pair.Player2ID),
            zap.Error(err),
        )
        return nil, err
    }
    return b, nil
}

func errCode(err error) string {
    switch {
    case errors.Is(err, battle.ErrBattleNotFound), errors.Is(err, queue.ErrNotQueued):
        return clashdto.CodeNotFound
    case errors.Is(err, battle.ErrInvalidPhase):
        return clashdto.CodeInvalidPhase
    case errors.Is(err, battle.ErrNotParticipant):
        return clashdto.CodeNotParticipant
    case errors.Is(err, battle.ErrDuplicateSelection), errors.Is(err, battle.ErrDuplicateVote):
        return clashdto.CodeDuplicateAction
    case errors.Is(err, battle.ErrSelfVote):
        return clashdto.CodeSelfVote
    case errors.Is(err, battle.ErrPlayerBusy):
        return clashdto.CodePlayerBusy
    case errors.Is(err, battle.ErrDeadlinePassed):
        return clashdto.CodeDeadlinePassed
    case errors.Is(err, battle.ErrConflict), errors.Is(err, queue.ErrConflict):
        return clashdto.CodeConflict
    case errors.Is(err, queue.ErrInvalidMode):
        return clashdto.CodeBadRequest
    default:
        return clashdto.CodeInternal
    }
}
