package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"marketmelee.ai/internal/config"
	"marketmelee.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "create":
			createCmd(os.Args[2:])
			return
		case "move":
			moveCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "history":
			historyCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// envDefaults returns the same settings the server would load, or zero values
// when the environment is incomplete.
func envDefaults() config.AppConfig {
	cfg, err := config.Load()
	if err != nil {
		return config.AppConfig{DataDir: "./data", Addr: ":8080"}
	}
	return *cfg
}

func listCmd(args []string) {
	env := envDefaults()
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", env.DataDir, "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Println(filepath.Join(dir, n))
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	snapPath := fs.String("snapshot", "", "path to .snap.zst")
	token := fs.String("token", "", "only print this boxer (optional)")
	_ = fs.Parse(args)

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d taken_at=%s tuning=%s boxers=%d\n",
		snap.Header.Version, snap.Header.TakenAt, snap.Header.TuningDigest, len(snap.Boxers))
	for _, b := range snap.Boxers {
		if *token != "" && b.Token != *token {
			continue
		}
		printJSON(b)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
