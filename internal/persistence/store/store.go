package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketmelee.ai/internal/sim/boxer"
)

var (
	ErrAlreadyExists      = errors.New("boxer already exists")
	ErrNotFound           = errors.New("boxer not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStale is returned by backends when the stored revision no longer matches
	// the one a lease loaded. Store reports it as ErrStorageUnavailable.
	ErrStale = errors.New("stale revision")

	ErrLeaseClosed = errors.New("lease already committed or released")

	// ErrNotEmpty is returned by Import when the backend already holds records.
	ErrNotEmpty = errors.New("store is not empty")
)

// Record is a persisted boxer plus bookkeeping.
type Record struct {
	State     boxer.State
	Revision  uint64
	UpdatedAt time.Time
}

// Transition is what a commit appends to history alongside the new state.
type Transition struct {
	ID     string
	Signal boxer.Signal
	At     time.Time
}

type HistoryEntry struct {
	TransitionID string
	Revision     uint64
	Signal       boxer.Signal
	AttackPower  uint8
	DefensePower uint8
	Move         boxer.Move
	RecordedAt   time.Time
}

// Backend is the durable half of the store. Implementations must make Replace
// all-or-nothing: either the record and its history entry are both written or neither is.
// Import is all-or-nothing too, and must check emptiness in the same write.
type Backend interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, token string) (Record, error)
	Replace(ctx context.Context, prevRevision uint64, next Record, tr Transition) error
	List(ctx context.Context) ([]Record, error)
	History(ctx context.Context, token string, limit int) ([]HistoryEntry, error)
	Import(ctx context.Context, recs []Record) error
	Close() error
}

// Store adds create-once semantics and per-token exclusive leases on top of a Backend.
type Store struct {
	backend Backend
	locks   *keyLocks
	now     func() time.Time
}

func New(b Backend) *Store {
	return &Store{
		backend: b,
		locks:   newKeyLocks(),
		now:     time.Now,
	}
}

func (s *Store) Close() error { return s.backend.Close() }

// Create writes a fresh boxer. The first record for a token is never overwritten.
func (s *Store) Create(ctx context.Context, token string) (Record, error) {
	st, err := boxer.New(token)
	if err != nil {
		return Record{}, err
	}
	unlock, err := s.locks.acquire(ctx, st.Token)
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	rec := Record{State: st, Revision: 1, UpdatedAt: s.now().UTC()}
	if err := s.backend.Insert(ctx, rec); err != nil {
		return Record{}, classify("create", err)
	}
	return rec, nil
}

// LoadForUpdate blocks until no other lease holds token, then loads it.
// The caller must Release the lease.
func (s *Store) LoadForUpdate(ctx context.Context, token string) (*Lease, error) {
	token, err := boxer.NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.acquire(ctx, token)
	if err != nil {
		return nil, err
	}
	rec, err := s.backend.Get(ctx, token)
	if err != nil {
		unlock()
		return nil, classify("load", err)
	}
	return &Lease{store: s, rec: rec, unlock: unlock}, nil
}

func (s *Store) Get(ctx context.Context, token string) (Record, error) {
	token, err := boxer.NormalizeToken(token)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.backend.Get(ctx, token)
	if err != nil {
		return Record{}, classify("get", err)
	}
	return rec, nil
}

func (s *Store) Phase(ctx context.Context, token string) (boxer.Phase, error) {
	_, err := s.Get(ctx, token)
	switch {
	case err == nil:
		return boxer.PhaseActive, nil
	case errors.Is(err, ErrNotFound):
		return boxer.PhaseUninitialized, nil
	default:
		return boxer.PhaseUninitialized, err
	}
}

func (s *Store) List(ctx context.Context) ([]Record, error) {
	recs, err := s.backend.List(ctx)
	if err != nil {
		return nil, classify("list", err)
	}
	return recs, nil
}

// History returns up to limit entries, newest first.
func (s *Store) History(ctx context.Context, token string, limit int) ([]HistoryEntry, error) {
	token, err := boxer.NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, token); err != nil {
		return nil, err
	}
	out, err := s.backend.History(ctx, token, limit)
	if err != nil {
		return nil, classify("history", err)
	}
	return out, nil
}

// Import writes records verbatim into an empty store. Either every record is
// written or none is, and a Create racing the import either lands first (and
// Import fails with ErrNotEmpty) or sees the imported record.
func (s *Store) Import(ctx context.Context, recs []Record) error {
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, err := boxer.NormalizeToken(rec.State.Token); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if !rec.State.LastMove.Valid() || rec.Revision == 0 {
			return fmt.Errorf("import %s: malformed record", rec.State.Token)
		}
		if _, dup := seen[rec.State.Token]; dup {
			return fmt.Errorf("import %s: duplicate token", rec.State.Token)
		}
		seen[rec.State.Token] = struct{}{}
	}
	if err := s.backend.Import(ctx, recs); err != nil {
		return classify("import", err)
	}
	return nil
}

// Lease is exclusive mutation access to one token, obtained from LoadForUpdate.
type Lease struct {
	store     *Store
	rec       Record
	unlock    func()
	committed bool
	released  bool
}

func (l *Lease) Record() Record     { return l.rec }
func (l *Lease) State() boxer.State { return l.rec.State }

// Commit atomically replaces the leased record with next. A failed commit
// leaves the previously committed record as the system of record.
func (l *Lease) Commit(ctx context.Context, next boxer.State, tr Transition) (Record, error) {
	if l.committed || l.released {
		return Record{}, ErrLeaseClosed
	}
	if next.Token != l.rec.State.Token {
		return Record{}, fmt.Errorf("commit: token mismatch %q != %q", next.Token, l.rec.State.Token)
	}
	if !next.LastMove.Valid() {
		return Record{}, fmt.Errorf("commit: invalid move %d", next.LastMove)
	}
	if tr.At.IsZero() {
		tr.At = l.store.now()
	}
	tr.At = tr.At.UTC()
	rec := Record{State: next, Revision: l.rec.Revision + 1, UpdatedAt: tr.At}
	if err := l.store.backend.Replace(ctx, l.rec.Revision, rec, tr); err != nil {
		return Record{}, classify("commit", err)
	}
	l.committed = true
	l.rec = rec
	return rec, nil
}

// Release gives up the lease. Safe to call more than once.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.unlock()
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrNotFound), errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrNotEmpty):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}
}
