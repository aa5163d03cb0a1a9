package queue

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"
)

// MemoryQueue is a mutex-guarded MatchQueue for development and tests; no
// Redis needed. Same FIFO and broadening semantics as RedisQueue.
type MemoryQueue struct {
    mu      sync.Mutex
    entries map[string]*Entry
    order   map[Mode][]string
}

func NewMemoryQueue() *MemoryQueue {
    return &MemoryQueue{
        entries: make(map[string]*Entry),
        order:   make(map[Mode][]string),
    }
}

func (q *MemoryQueue) Join(ctx context.Context, playerID string, mode Mode) (*Entry, error) {
    playerID = strings.TrimSpace(playerID)
    if playerID == "" { return nil, fmt.Errorf("invalid player id") }
    if _, err := ParseMode(string(mode)); err != nil { return nil, err }

    q.mu.Lock()
    defer q.mu.Unlock()
    if cur, ok := q.entries[playerID]; ok { return cur, nil }
    e := &Entry{PlayerID: playerID, Mode: mode, JoinedAt: time.Now()}
    q.entries[playerID] = e
    q.order[mode] = append(q.order[mode], playerID)
    return e, nil
}

func (q *MemoryQueue) TryMatch(ctx context.Context, playerID string) (*Pair, error) {
    playerID = strings.TrimSpace(playerID)

    q.mu.Lock()
    defer q.mu.Unlock()
    own, ok := q.entries[playerID]
    if !ok { return nil, ErrNotQueued }

    scan := []Mode{own.Mode}
    if own.Mode == ModeBalanced {
        for _, m := range allModes {
            if m != ModeBalanced { scan = append(scan, m) }
        }
    }
    for _, m := range scan {
        for _, id := range q.order[m] {
            if id == playerID { continue }
            cand, ok := q.entries[id]
            if !ok { continue }
            q.remove(id, m)
            q.remove(playerID, own.Mode)
            p := &Pair{Player1ID: id, Player2ID: playerID, Mode: own.Mode}
            if cand.JoinedAt.After(own.JoinedAt) {
                p.Player1ID, p.Player2ID = playerID, id
            }
            return p, nil
        }
    }
    return nil, nil
}

func (q *MemoryQueue) Leave(ctx context.Context, playerID string) error {
    playerID = strings.TrimSpace(playerID)
    q.mu.Lock()
    defer q.mu.Unlock()
    own, ok := q.entries[playerID]
    if !ok { return nil }
    q.remove(playerID, own.Mode)
    return nil
}

// remove drops the entry and its first list occurrence. Callers hold mu.
func (q *MemoryQueue) remove(playerID string, mode Mode) {
    delete(q.entries, playerID)
    list := q.order[mode]
    for i, id := range list {
        if id == playerID {
            q.order[mode] = append(list[:i], list[i+1:]...)
            return
        }
    }
}
