package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketmelee.ai/internal/auth"
	"marketmelee.ai/internal/protocol"
)

type client struct {
	baseURL string
	secret  []byte
	caller  string
	http    *http.Client
}

func clientFlags(fs *flag.FlagSet) func() client {
	env := envDefaults()
	base := "http://127.0.0.1" + env.Addr
	if !strings.HasPrefix(env.Addr, ":") {
		base = "http://" + env.Addr
	}
	baseURL := fs.String("url", base, "server base url")
	secret := fs.String("secret", env.HMACSecret, "hmac secret (default: RINGSIDE_HMAC_SECRET)")
	caller := fs.String("caller", "admin", "caller id sent in "+auth.HeaderCallerID)
	return func() client {
		return client{
			baseURL: strings.TrimRight(strings.TrimSpace(*baseURL), "/"),
			secret:  []byte(*secret),
			caller:  *caller,
			http:    &http.Client{Timeout: 10 * time.Second},
		}
	}
}

// do sends the request, prints the body and exits non-zero on a non-2xx status.
func (c client) do(method, path string, body any) {
	status, b, err := c.send(method, path, body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	fmt.Print(string(b))
	if status/100 != 2 {
		os.Exit(1)
	}
}

// send encodes body as JSON and signs the request when a secret is set.
func (c client) send(method, path string, body any) (int, []byte, error) {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode: %w", err)
		}
		raw = b
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(c.secret) > 0 {
		auth.Sign(req, c.secret, c.caller, uuid.NewString(), raw, time.Now())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func boxerPath(token string) string { return "/v1/boxers/" + url.PathEscape(token) }
func movesPath(token string) string { return boxerPath(token) + "/moves" }
func historyPath(token string, limit int) string {
	return fmt.Sprintf("%s/history?limit=%d", boxerPath(token), limit)
}

func requireToken(token string) {
	if strings.TrimSpace(token) == "" {
		fmt.Fprintln(os.Stderr, "missing -token")
		os.Exit(2)
	}
}

func createCmd(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	mk := clientFlags(fs)
	token := fs.String("token", "", "boxer token")
	_ = fs.Parse(args)
	requireToken(*token)

	mk().do(http.MethodPost, "/v1/boxers", protocol.CreateBoxerReq{Token: *token})
}

func moveCmd(args []string) {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	mk := clientFlags(fs)
	token := fs.String("token", "", "boxer token")
	priceDelta := fs.Float64("price_delta", 0, "signed price change")
	volume := fs.Float64("volume", 0, "traded volume")
	volatility := fs.Float64("volatility", 0, "volatility")
	candle := fs.String("candle", "", "OHLCV bar as open,high,low,close,volume (overrides the signal flags)")
	_ = fs.Parse(args)
	requireToken(*token)

	var req protocol.MarketMoveReq
	if *candle != "" {
		c, err := parseCandle(*candle)
		if err != nil {
			fmt.Fprintln(os.Stderr, "candle:", err)
			os.Exit(2)
		}
		req.Candle = &c
	} else {
		req.Signal = &protocol.SignalBody{PriceDelta: *priceDelta, Volume: *volume, Volatility: *volatility}
	}
	mk().do(http.MethodPost, movesPath(*token), req)
}

func parseCandle(s string) (protocol.CandleBody, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return protocol.CandleBody{}, fmt.Errorf("want 5 comma separated numbers, got %d", len(parts))
	}
	var v [5]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return protocol.CandleBody{}, err
		}
		v[i] = f
	}
	return protocol.CandleBody{Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	mk := clientFlags(fs)
	token := fs.String("token", "", "boxer token")
	_ = fs.Parse(args)
	requireToken(*token)

	mk().do(http.MethodGet, boxerPath(*token), nil)
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	mk := clientFlags(fs)
	token := fs.String("token", "", "boxer token")
	limit := fs.Int("limit", 20, "max entries, newest first")
	_ = fs.Parse(args)
	requireToken(*token)

	mk().do(http.MethodGet, historyPath(*token, *limit), nil)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	mk := clientFlags(fs)
	_ = fs.Parse(args)

	mk().do(http.MethodPost, "/admin/v1/snapshot", nil)
}
