// Package ring wires the actor store, the transition engine and the side
// effects of a committed transition.
package ring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"marketmelee.ai/internal/animation"
	tlog "marketmelee.ai/internal/persistence/log"
	"marketmelee.ai/internal/persistence/snapshot"
	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/sim/boxer"
)

// AnimationTrigger is the fire-and-forget half of animation.Dispatcher.
type AnimationTrigger interface {
	Trigger(req animation.Request) bool
}

type TransitionWriter interface {
	WriteTransition(e tlog.TransitionEntry) error
}

type Config struct {
	Store  *store.Store
	Engine *boxer.Engine

	// Optional.
	Animations  AnimationTrigger
	Transitions TransitionWriter
	Logger      *log.Logger
	Now         func() time.Time
	NewID       func() string
}

// Outcome is the result of one committed market move.
type Outcome struct {
	Before       boxer.State
	Record       store.Record
	TransitionID string
	Animation    boxer.AnimationRequest
}

type Service struct {
	store       *store.Store
	engine      *boxer.Engine
	digest      string
	animations  AnimationTrigger
	transitions TransitionWriter
	log         *log.Logger
	now         func() time.Time
	newID       func() string

	created    atomic.Uint64
	processed  atomic.Uint64
	animFired  atomic.Uint64
	animMissed atomic.Uint64
	logErrors  atomic.Uint64

	rejMu    sync.Mutex
	rejected map[string]uint64
}

func New(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Engine == nil {
		return nil, errors.New("ring: store and engine are required")
	}
	s := &Service{
		store:       cfg.Store,
		engine:      cfg.Engine,
		digest:      cfg.Engine.Tuning().Digest(),
		animations:  cfg.Animations,
		transitions: cfg.Transitions,
		log:         cfg.Logger,
		now:         cfg.Now,
		newID:       cfg.NewID,
		rejected:    map[string]uint64{},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

func (s *Service) TuningDigest() string { return s.digest }

func (s *Service) CreateBoxer(ctx context.Context, token string) (store.Record, error) {
	rec, err := s.store.Create(ctx, token)
	if err != nil {
		s.reject(err)
		return store.Record{}, err
	}
	s.created.Add(1)
	s.logf("created boxer %s", rec.State.Token)
	return rec, nil
}

// ProcessMarketMove applies sig to token's boxer. The animation request and the
// transition log entry are emitted only after the commit succeeds, and neither
// can undo it. Both are emitted before the lease is released so they stay in
// revision order per token.
func (s *Service) ProcessMarketMove(ctx context.Context, token string, sig boxer.Signal) (Outcome, error) {
	out, err := s.processMarketMove(ctx, token, sig)
	if err != nil {
		s.reject(err)
		return Outcome{}, err
	}
	return out, nil
}

func (s *Service) processMarketMove(ctx context.Context, token string, sig boxer.Signal) (Outcome, error) {
	if err := s.engine.Validate(sig); err != nil {
		return Outcome{}, err
	}
	lease, err := s.store.LoadForUpdate(ctx, token)
	if err != nil {
		return Outcome{}, err
	}
	defer lease.Release()

	before := lease.State()
	next, anim, err := s.engine.Process(before, sig)
	if err != nil {
		return Outcome{}, err
	}
	id := s.newID()
	rec, err := lease.Commit(ctx, next, store.Transition{ID: id, Signal: sig, At: s.now()})
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Before: before, Record: rec, TransitionID: id, Animation: anim}
	s.processed.Add(1)
	s.afterCommit(out, sig)
	return out, nil
}

func (s *Service) afterCommit(out Outcome, sig boxer.Signal) {
	if s.animations != nil {
		ok := s.animations.Trigger(animation.Request{
			Token:    out.Animation.Token,
			Move:     out.Animation.Move,
			Revision: out.Record.Revision,
			At:       out.Record.UpdatedAt,
		})
		if ok {
			s.animFired.Add(1)
		} else {
			s.animMissed.Add(1)
		}
	}
	if s.transitions != nil {
		err := s.transitions.WriteTransition(tlog.TransitionEntry{
			TS:           out.Record.UpdatedAt.Format(time.RFC3339Nano),
			TransitionID: out.TransitionID,
			Token:        out.Record.State.Token,
			Revision:     out.Record.Revision,
			TuningDigest: s.digest,
			Signal:       sig,
			Before:       out.Before,
			After:        out.Record.State,
		})
		if err != nil {
			s.logErrors.Add(1)
			s.logf("transition log %s rev=%d: %v", out.Record.State.Token, out.Record.Revision, err)
		}
	}
}

func (s *Service) Boxer(ctx context.Context, token string) (store.Record, error) {
	return s.store.Get(ctx, token)
}

func (s *Service) History(ctx context.Context, token string, limit int) ([]store.HistoryEntry, error) {
	return s.store.History(ctx, token, limit)
}

// Snapshot exports every record. Records mutated while it runs may appear at
// either revision.
func (s *Service) Snapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:      snapshot.Version,
			TakenAt:      s.now().UTC().Format(time.RFC3339Nano),
			TuningDigest: s.digest,
			Boxers:       len(recs),
		},
		Boxers: make([]snapshot.BoxerV1, 0, len(recs)),
	}
	for _, r := range recs {
		snap.Boxers = append(snap.Boxers, snapshot.BoxerV1{
			Token:        r.State.Token,
			Health:       r.State.Health,
			AttackPower:  r.State.AttackPower,
			DefensePower: r.State.DefensePower,
			LastMove:     r.State.LastMove.String(),
			Revision:     r.Revision,
			UpdatedAt:    r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return snap, nil
}

// Restore loads a snapshot into an empty store.
func (s *Service) Restore(ctx context.Context, snap snapshot.SnapshotV1) error {
	if snap.Header.TuningDigest != "" && snap.Header.TuningDigest != s.digest {
		s.logf("restoring snapshot taken with tuning %s into tuning %s", snap.Header.TuningDigest, s.digest)
	}
	recs := make([]store.Record, 0, len(snap.Boxers))
	for _, b := range snap.Boxers {
		m, err := boxer.ParseMove(b.LastMove)
		if err != nil {
			return fmt.Errorf("restore %s: %w", b.Token, err)
		}
		at, err := time.Parse(time.RFC3339Nano, b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("restore %s: %w", b.Token, err)
		}
		recs = append(recs, store.Record{
			State: boxer.State{
				Token:        b.Token,
				Health:       b.Health,
				AttackPower:  b.AttackPower,
				DefensePower: b.DefensePower,
				LastMove:     m,
			},
			Revision:  b.Revision,
			UpdatedAt: at,
		})
	}
	if err := s.store.Import(ctx, recs); err != nil {
		return err
	}
	s.logf("restored %d boxers", len(recs))
	return nil
}

func (s *Service) reject(err error) {
	code := ErrorCode(err)
	s.rejMu.Lock()
	s.rejected[code]++
	s.rejMu.Unlock()
}

func (s *Service) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
