package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Backend for tests and throwaway runs.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	history map[string][]HistoryEntry
}

func NewMemory() *Memory {
	return &Memory{
		records: map[string]Record{},
		history: map[string][]HistoryEntry{},
	}
}

func (m *Memory) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.State.Token]; ok {
		return ErrAlreadyExists
	}
	m.records[rec.State.Token] = rec
	return nil
}

func (m *Memory) Get(ctx context.Context, token string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[token]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Replace(ctx context.Context, prevRevision uint64, next Record, tr Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[next.State.Token]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != prevRevision {
		return ErrStale
	}
	m.records[next.State.Token] = next
	m.history[next.State.Token] = append(m.history[next.State.Token], HistoryEntry{
		TransitionID: tr.ID,
		Revision:     next.Revision,
		Signal:       tr.Signal,
		AttackPower:  next.State.AttackPower,
		DefensePower: next.State.DefensePower,
		Move:         next.State.LastMove,
		RecordedAt:   tr.At,
	})
	return nil
}

func (m *Memory) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State.Token < out[j].State.Token })
	return out, nil
}

func (m *Memory) History(ctx context.Context, token string, limit int) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[token]
	out := make([]HistoryEntry, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, h[i])
	}
	return out, nil
}

func (m *Memory) Import(ctx context.Context, recs []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) > 0 {
		return ErrNotEmpty
	}
	for _, rec := range recs {
		m.records[rec.State.Token] = rec
	}
	return nil
}

// Put overwrites a record outside the lease protocol, the way another
// writer on the same storage might.
func (m *Memory) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.State.Token] = rec
	return nil
}

// Delete removes a record outside the lease protocol, the way an external
// storage collaborator might.
func (m *Memory) Delete(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, token)
	delete(m.history, token)
}

func (m *Memory) Close() error { return nil }
