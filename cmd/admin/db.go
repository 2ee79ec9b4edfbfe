package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd reads the server's sqlite file directly. Safe while the server runs
// (WAL readers do not block the writer).
func dbCmd(args []string) {
	env := envDefaults()
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", env.DataDir, "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; default <data>/ring.sqlite)")
	token := fs.String("token", "", "token filter (transitions)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "boxers"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "ring.sqlite")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "boxers":
		rows, err := db.Query(`SELECT token,health,attack_power,defense_power,last_move,revision,updated_at FROM boxers ORDER BY updated_at DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Token        string `json:"token"`
				Health       int    `json:"health"`
				AttackPower  int    `json:"attack_power"`
				DefensePower int    `json:"defense_power"`
				LastMove     string `json:"last_move"`
				Revision     int64  `json:"revision"`
				UpdatedAt    string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Token, &r.Health, &r.AttackPower, &r.DefensePower, &r.LastMove, &r.Revision, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "transitions":
		query := `SELECT token,revision,transition_id,price_delta,volume,volatility,attack_power,defense_power,move,recorded_at FROM transitions`
		qargs := []any{}
		if *token != "" {
			query += ` WHERE token=?`
			qargs = append(qargs, *token)
		}
		query += ` ORDER BY recorded_at DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Token        string  `json:"token"`
				Revision     int64   `json:"revision"`
				TransitionID string  `json:"transition_id"`
				PriceDelta   float64 `json:"price_delta"`
				Volume       float64 `json:"volume"`
				Volatility   float64 `json:"volatility"`
				AttackPower  int     `json:"attack_power"`
				DefensePower int     `json:"defense_power"`
				Move         string  `json:"move"`
				RecordedAt   string  `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Token, &r.Revision, &r.TransitionID, &r.PriceDelta, &r.Volume, &r.Volatility, &r.AttackPower, &r.DefensePower, &r.Move, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "tuning":
		rows, err := db.Query(`SELECT digest,json,first_seen FROM tuning ORDER BY first_seen DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var digest, js, seen string
			if err := rows.Scan(&digest, &js, &seen); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			fmt.Printf("%s %s %s\n", seen, digest, js)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want boxers|transitions|tuning)")
		os.Exit(2)
	}
}
