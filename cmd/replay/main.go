package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "marketmelee.ai/internal/persistence/log"
	"marketmelee.ai/internal/sim/boxer"
	"marketmelee.ai/internal/sim/tuning"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		dir        = flag.String("transitions", "", "dir containing transitions-*.jsonl.zst (default: <data>/transitions)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml the log was written with")
		token      = flag.String("token", "", "only verify this token (optional)")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	eng, err := boxer.NewEngine(tune.Engine)
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}

	tdir := *dir
	if tdir == "" {
		tdir = filepath.Join(*dataDir, "transitions")
	}
	files, err := persistlog.ListFiles(tdir, "transitions")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list transitions:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no transition files found in", tdir)
		os.Exit(1)
	}

	v := newVerifier(eng, *token)
	for _, path := range files {
		if err := persistlog.ReadTransitions(path, v.check); err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d transitions tokens=%d skipped_other_tuning=%d\n", v.checked, len(v.last), v.skipped)
}

type verifier struct {
	eng    *boxer.Engine
	digest string
	token  string

	last    map[string]persistlog.TransitionEntry
	checked int
	skipped int
}

func newVerifier(eng *boxer.Engine, token string) *verifier {
	return &verifier{
		eng:    eng,
		digest: eng.Tuning().Digest(),
		token:  token,
		last:   map[string]persistlog.TransitionEntry{},
	}
}

// check re-runs one logged transition and compares it with what was committed.
// It also checks that consecutive entries for a token chain revision to revision.
func (v *verifier) check(e persistlog.TransitionEntry) error {
	if v.token != "" && e.Token != v.token {
		return nil
	}
	if prev, ok := v.last[e.Token]; ok {
		if e.Revision != prev.Revision+1 {
			return fmt.Errorf("%s: revision gap %d -> %d", e.Token, prev.Revision, e.Revision)
		}
		if e.Before != prev.After {
			return fmt.Errorf("%s rev=%d: before state does not match previous after state", e.Token, e.Revision)
		}
	}
	v.last[e.Token] = e

	if e.TuningDigest != v.digest {
		v.skipped++
		return nil
	}
	got, _, err := v.eng.Process(e.Before, e.Signal)
	if err != nil {
		return fmt.Errorf("%s rev=%d: %w", e.Token, e.Revision, err)
	}
	if got != e.After {
		return fmt.Errorf("%s rev=%d transition=%s: replayed %+v, logged %+v", e.Token, e.Revision, e.TransitionID, got, e.After)
	}
	v.checked++
	return nil
}
