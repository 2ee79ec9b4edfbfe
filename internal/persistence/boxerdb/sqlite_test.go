package boxerdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/sim/boxer"
	"marketmelee.ai/internal/sim/tuning"
)

func openTemp(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boxers.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return db, path
}

func TestSQLite_CreateCommitReopen(t *testing.T) {
	ctx := context.Background()
	db, path := openTemp(t)
	s := store.New(db)

	if _, err := s.Create(ctx, "ETH"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, "ETH"); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("second Create err=%v", err)
	}

	lease, err := s.LoadForUpdate(ctx, "ETH")
	if err != nil {
		t.Fatalf("LoadForUpdate: %v", err)
	}
	next := lease.State()
	next.AttackPower = 200
	next.DefensePower = 20
	next.LastMove = boxer.MoveCombo
	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	sig := boxer.Signal{PriceDelta: 50, Volume: 1000, Volatility: 5}
	if _, err := lease.Commit(ctx, next, store.Transition{ID: "t-1", Signal: sig, At: at}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	lease.Release()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	s2 := store.New(db2)

	got, err := s2.Get(ctx, "ETH")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := boxer.State{Token: "ETH", Health: 100, AttackPower: 200, DefensePower: 20, LastMove: boxer.MoveCombo}
	if got.State != want || got.Revision != 2 || !got.UpdatedAt.Equal(at) {
		t.Fatalf("got %+v", got)
	}
	h, err := s2.History(ctx, "ETH", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 1 || h[0].TransitionID != "t-1" || h[0].Signal != sig || h[0].Move != boxer.MoveCombo || h[0].Revision != 2 {
		t.Fatalf("history %+v", h)
	}
}

func TestSQLite_ReplaceDistinguishesMissingFromStale(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	defer db.Close()

	rec := store.Record{State: boxer.State{Token: "X", Health: 100, LastMove: boxer.MoveStumble}, Revision: 1, UpdatedAt: time.Now()}
	next := rec
	next.Revision = 2
	if err := db.Replace(ctx, 1, next, store.Transition{At: time.Now()}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing row err=%v", err)
	}
	if err := db.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Replace(ctx, 5, next, store.Transition{At: time.Now()}); !errors.Is(err, store.ErrStale) {
		t.Fatalf("stale err=%v", err)
	}
	h, _ := db.History(ctx, "X", 0)
	if len(h) != 0 {
		t.Fatalf("rejected replace wrote history: %+v", h)
	}
}

func TestSQLite_HistoryNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	defer db.Close()
	s := store.New(db)
	_, _ = s.Create(ctx, "H")

	for i := 0; i < 5; i++ {
		lease, err := s.LoadForUpdate(ctx, "H")
		if err != nil {
			t.Fatalf("LoadForUpdate: %v", err)
		}
		next := lease.State()
		next.AttackPower = uint8(i)
		next.LastMove = boxer.MoveJab
		if _, err := lease.Commit(ctx, next, store.Transition{ID: string(rune('a' + i))}); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		lease.Release()
	}
	h, err := s.History(ctx, "H", 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 3 || h[0].Revision != 6 || h[2].Revision != 4 || h[0].TransitionID != "e" {
		t.Fatalf("history %+v", h)
	}
	all, _ := s.History(ctx, "H", 0)
	if len(all) != 5 {
		t.Fatalf("unbounded history len=%d", len(all))
	}
}

func TestSQLite_ConcurrentLeases(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	defer db.Close()
	s := store.New(db)
	_, _ = s.Create(ctx, "C")

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := s.LoadForUpdate(ctx, "C")
			if err != nil {
				t.Errorf("LoadForUpdate: %v", err)
				return
			}
			defer lease.Release()
			next := lease.State()
			next.DefensePower++
			next.LastMove = boxer.MoveDodge
			if _, err := lease.Commit(ctx, next, store.Transition{}); err != nil {
				t.Errorf("Commit: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "C")
	if got.State.DefensePower != n || got.Revision != n+1 {
		t.Fatalf("got %+v", got)
	}
}

func TestSQLite_ClosedDBIsStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	s := store.New(db)
	_, _ = s.Create(ctx, "Z")
	_ = db.Close()

	if _, err := s.Get(ctx, "Z"); !errors.Is(err, store.ErrStorageUnavailable) {
		t.Fatalf("err=%v want ErrStorageUnavailable", err)
	}
}

func TestSQLite_RecordTuning(t *testing.T) {
	ctx := context.Background()
	db, path := openTemp(t)
	tune := tuning.Defaults()
	if err := db.RecordTuning(ctx, tune); err != nil {
		t.Fatalf("RecordTuning: %v", err)
	}
	if err := db.RecordTuning(ctx, tune); err != nil {
		t.Fatalf("RecordTuning twice: %v", err)
	}
	_ = db.Close()

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer raw.Close()
	var (
		n      int
		digest string
	)
	if err := raw.QueryRow(`SELECT COUNT(*), MAX(digest) FROM tuning`).Scan(&n, &digest); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 1 || digest != tune.Engine.Digest() {
		t.Fatalf("n=%d digest=%s", n, digest)
	}
}

func TestSQLite_ImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := store.Record{State: boxer.State{Token: "a", Health: 100, AttackPower: 7, LastMove: boxer.MoveUppercut}, Revision: 9, UpdatedAt: at}
	b := store.Record{State: boxer.State{Token: "b", Health: 100, LastMove: boxer.MoveStumble}, Revision: 1, UpdatedAt: at}

	// The second row violates the primary key, so the first must roll back too.
	if err := db.Import(ctx, []store.Record{a, a}); err == nil {
		t.Fatalf("expected duplicate key failure")
	}
	if all, err := db.List(ctx); err != nil || len(all) != 0 {
		t.Fatalf("partial import: %d records err=%v", len(all), err)
	}

	if err := db.Import(ctx, []store.Record{a, b}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, err := db.Get(ctx, "a")
	if err != nil || got.Revision != 9 || got.State.AttackPower != 7 || got.State.LastMove != boxer.MoveUppercut {
		t.Fatalf("got %+v err=%v", got, err)
	}
	if err := db.Import(ctx, []store.Record{{State: boxer.State{Token: "c", Health: 100, LastMove: boxer.MoveJab}, Revision: 1}}); !errors.Is(err, store.ErrNotEmpty) {
		t.Fatalf("import into non-empty db err=%v want ErrNotEmpty", err)
	}
	if _, err := db.Get(ctx, "c"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected import leaked a record: %v", err)
	}
}
