package battle

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "time"

    _ "github.com/lib/pq"

    "github.com/soundclash/soundclash-server/internal/reward"
)

// Repository archives completed battles in Postgres. Downstream consumers
// (taste profiling, leaderboards) read from here; the live engine state
// stays in Redis.
type Repository struct {
    db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
    if strings.TrimSpace(databaseURL) == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    db, err := sql.Open("postgres", databaseURL)
    if err != nil {
        return nil, err
    }
    db.SetMaxOpenConns(16)
    db.SetMaxIdleConns(8)
    db.SetConnMaxLifetime(30 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        return nil, err
    }
    return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
    if r == nil || r.db == nil { return nil }
    return r.db.Close()
}

// SaveResult inserts the final outcome keyed by battle id. ON CONFLICT DO
// NOTHING keeps a replayed archive call from rewriting history.
func (r *Repository) SaveResult(ctx context.Context, b *Battle, res *reward.Result) error {
    if r == nil || r.db == nil || b == nil || res == nil {
        return nil
    }
    duration := b.CompletedAt.Sub(b.CreatedAt).Milliseconds()
    if duration < 0 { duration = 0 }

    const q = `INSERT INTO battle_results (
        battle_id, player1_id, player2_id, sound_id, scene,
        winner_id, player1_votes, player2_votes, crowd_energy,
        player1_hype, player2_hype,
        started_at, completed_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
      ) ON CONFLICT (battle_id) DO NOTHING`

    _, err := r.db.ExecContext(ctx, q,
        b.ID,
        b.Player1ID, b.Player2ID,
        b.SoundID, b.Scene,
        nullString(res.WinnerID),
        res.Player1Votes, res.Player2Votes, res.CrowdEnergy,
        res.Player1Hype, res.Player2Hype,
        b.CreatedAt, b.CompletedAt, duration,
    )
    return err
}

func nullString(s string) any {
    if strings.TrimSpace(s) == "" {
        return nil
    }
    return s
}
