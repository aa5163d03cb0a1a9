package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/soundclash/soundclash-server/internal/obslog"
)

const ttlQueue = time.Hour

// RedisQueue is the production MatchQueue. Entries live under
// mq:entry:<playerID>, per-mode FIFO order in mq:mode:<mode> lists. The
// pair claim runs inside a WATCH transaction over the scanned lists, so two
// concurrent polls can never both claim the same waiter.
type RedisQueue struct {
    rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) (*RedisQueue, error) {
    if rdb == nil { return nil, fmt.Errorf("redis client required for match queue") }
    return &RedisQueue{rdb: rdb}, nil
}

func (q *RedisQueue) Join(ctx context.Context, playerID string, mode Mode) (*Entry, error) {
    playerID = strings.TrimSpace(playerID)
    if playerID == "" { return nil, fmt.Errorf("invalid player id") }
    if _, err := ParseMode(string(mode)); err != nil { return nil, err }

    e := &Entry{PlayerID: playerID, Mode: mode, JoinedAt: time.Now()}
    raw, err := json.Marshal(e)
    if err != nil { return nil, err }
    ok, err := q.rdb.SetNX(ctx, entryKey(playerID), raw, ttlQueue).Result()
    if err != nil { return nil, err }
    if !ok {
        // live entry wins, whatever mode the retry asked for
        cur, err := q.entry(ctx, playerID)
        if err != nil { return nil, err }
        if cur != nil { return cur, nil }
        // entry expired between SetNX and Get; retry the claim once
        if err := q.rdb.Set(ctx, entryKey(playerID), raw, ttlQueue).Err(); err != nil { return nil, err }
    }
    pipe := q.rdb.TxPipeline()
    pipe.RPush(ctx, modeKey(mode), playerID)
    pipe.Expire(ctx, modeKey(mode), ttlQueue)
    if _, err := pipe.Exec(ctx); err != nil { return nil, err }
    obslog.L().Info("queue_join", zap.String("player_id", playerID), zap.String("mode", string(mode)))
    return e, nil
}

func (q *RedisQueue) TryMatch(ctx context.Context, playerID string) (*Pair, error) {
    playerID = strings.TrimSpace(playerID)
    own, err := q.entry(ctx, playerID)
    if err != nil { return nil, err }
    if own == nil { return nil, ErrNotQueued }

    scan := []Mode{own.Mode}
    if own.Mode == ModeBalanced {
        for _, m := range allModes {
            if m != ModeBalanced { scan = append(scan, m) }
        }
    }
    watchKeys := make([]string, 0, len(scan))
    for _, m := range scan { watchKeys = append(watchKeys, modeKey(m)) }

    var pair *Pair
    err = q.rdb.Watch(ctx, func(tx *redis.Tx) error {
        var candidate string
        var candMode Mode
        var candEntry *Entry
        for _, m := range scan {
            ids, err := tx.LRange(ctx, modeKey(m), 0, -1).Result()
            if err != nil { return err }
            for _, id := range ids {
                if id == playerID { continue }
                ce, err := entryTx(ctx, tx, id)
                if err != nil { return err }
                if ce == nil { continue } // stale list member, entry expired
                candidate, candMode, candEntry = id, m, ce
                break
            }
            if candidate != "" { break }
        }
        if candidate == "" { return errNoCandidate }

        pipe := tx.TxPipeline()
        pipe.LRem(ctx, modeKey(candMode), 1, candidate)
        pipe.LRem(ctx, modeKey(own.Mode), 1, playerID)
        pipe.Del(ctx, entryKey(candidate), entryKey(playerID))
        if _, err := pipe.Exec(ctx); err != nil { return err }

        p := &Pair{Player1ID: candidate, Player2ID: playerID, Mode: own.Mode}
        if candEntry.JoinedAt.After(own.JoinedAt) {
            p.Player1ID, p.Player2ID = playerID, candidate
        }
        pair = p
        return nil
    }, watchKeys...)
    if err != nil {
        if errors.Is(err, errNoCandidate) { return nil, nil }
        if errors.Is(err, redis.TxFailedErr) { return nil, ErrConflict }
        return nil, err
    }
    obslog.L().Info("queue_match",
        zap.String("player1_id", pair.Player1ID),
        zap.String("player2_id", pair.Player2ID),
        zap.String("mode", string(pair.Mode)),
    )
    return pair, nil
}

func (q *RedisQueue) Leave(ctx context.Context, playerID string) error {
    playerID = strings.TrimSpace(playerID)
    own, err := q.entry(ctx, playerID)
    if err != nil { return err }
    if own == nil { return nil }
    pipe := q.rdb.TxPipeline()
    pipe.LRem(ctx, modeKey(own.Mode), 1, playerID)
    pipe.Del(ctx, entryKey(playerID))
    if _, err := pipe.Exec(ctx); err != nil { return err }
    obslog.L().Info("queue_leave", zap.String("player_id", playerID), zap.String("mode", string(own.Mode)))
    return nil
}

var errNoCandidate = errors.New("no_candidate")

func (q *RedisQueue) entry(ctx context.Context, playerID string) (*Entry, error) {
    return entryTx(ctx, q.rdb, playerID)
}

func entryTx(ctx context.Context, c redis.Cmdable, playerID string) (*Entry, error) {
    raw, err := c.Get(ctx, entryKey(playerID)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    var e Entry
    if err := json.Unmarshal(raw, &e); err != nil { return nil, err }
    return &e, nil
}

func entryKey(playerID string) string { return "mq:entry:" + strings.TrimSpace(playerID) }
func modeKey(m Mode) string           { return "mq:mode:" + string(m) }
