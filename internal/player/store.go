package player

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/soundclash/soundclash-server/internal/obslog"
)

const (
    fieldHype    = "hype_points"
    fieldBattles = "battle_count"
    fieldWins    = "win_count"
    fieldSeenAt  = "last_seen_at"
)

// Stats are a player's cumulative totals. Mutated only by the battle
// completion payout; players are never destroyed.
type Stats struct {
    PlayerID    string `json:"player_id"`
    HypePoints  int64  `json:"hype_points"`
    BattleCount int64  `json:"battle_count"`
    WinCount    int64  `json:"win_count"`
}

// Store keeps live player totals in a Redis hash per player.
type Store struct {
    rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Ensure registers a player record on first contact. Idempotent.
func (s *Store) Ensure(ctx context.Context, playerID string) error {
    playerID = strings.TrimSpace(playerID)
    if playerID == "" { return fmt.Errorf("invalid player id") }
    return s.rdb.HSetNX(ctx, playerKey(playerID), fieldSeenAt, time.Now().UnixMilli()).Err()
}

// Get returns the player's current totals; zero totals for unknown players.
func (s *Store) Get(ctx context.Context, playerID string) (*Stats, error) {
    playerID = strings.TrimSpace(playerID)
    vals, err := s.rdb.HGetAll(ctx, playerKey(playerID)).Result()
    if err != nil { return nil, err }
    st := &Stats{PlayerID: playerID}
    st.HypePoints = parseField(vals, fieldHype)
    st.BattleCount = parseField(vals, fieldBattles)
    st.WinCount = parseField(vals, fieldWins)
    return st, nil
}

// ApplyReward credits one battle's payout. HIncrBy keeps concurrent battles
// of different players independent; the battle manager guarantees at most
// one call per player per battle.
func (s *Store) ApplyReward(ctx context.Context, playerID string, hype int, won bool) error {
    playerID = strings.TrimSpace(playerID)
    if playerID == "" { return fmt.Errorf("invalid player id") }
    key := playerKey(playerID)
    pipe := s.rdb.TxPipeline()
    pipe.HIncrBy(ctx, key, fieldHype, int64(hype))
    pipe.HIncrBy(ctx, key, fieldBattles, 1)
    if won { pipe.HIncrBy(ctx, key, fieldWins, 1) }
    if _, err := pipe.Exec(ctx); err != nil { return err }
    obslog.L().Info("player_reward",
        zap.String("player_id", playerID),
        zap.Int("hype", hype),
        zap.Bool("won", won),
    )
    return nil
}

func parseField(vals map[string]string, field string) int64 {
    var n int64
    if raw, ok := vals[field]; ok {
        _, _ = fmt.Sscanf(raw, "%d", &n)
    }
    return n
}

func playerKey(id string) string { return "player:" + strings.TrimSpace(id) }
