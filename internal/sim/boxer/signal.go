package boxer

import (
	"errors"
	"fmt"

	"marketmelee.ai/internal/sim/logic/mathx"
)

var ErrInvalidSignal = errors.New("invalid signal")

// Signal is one market observation from the oracle. It is never stored as state.
type Signal struct {
	PriceDelta float64 `json:"price_delta"`
	Volume     float64 `json:"volume"`
	Volatility float64 `json:"volatility"`
}

// Candle is an OHLCV bar. SignalFromCandle derives a Signal from it.
type Candle struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// SignalFromCandle maps a bar to percent change, percent range and volume.
func SignalFromCandle(c Candle) (Signal, error) {
	fields := []struct {
		name string
		v    float64
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}, {"volume", c.Volume}}
	for _, f := range fields {
		if !mathx.IsFinite(f.v) {
			return Signal{}, fmt.Errorf("%w: candle %s is not finite", ErrInvalidSignal, f.name)
		}
	}
	if c.Open <= 0 || c.Low <= 0 {
		return Signal{}, fmt.Errorf("%w: candle open and low must be > 0", ErrInvalidSignal)
	}
	if c.High < c.Low {
		return Signal{}, fmt.Errorf("%w: candle high below low", ErrInvalidSignal)
	}
	return Signal{
		PriceDelta: (c.Close - c.Open) / c.Open * 100,
		Volume:     c.Volume,
		Volatility: (c.High - c.Low) / c.Low * 100,
	}, nil
}
