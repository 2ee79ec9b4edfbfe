package protocol

// POST /v1/boxers
type CreateBoxerReq struct {
	Token string `json:"token"`
}

// POST /v1/boxers/{token}/moves. Exactly one of Signal or Candle is set.
type MarketMoveReq struct {
	Signal *SignalBody `json:"signal,omitempty"`
	Candle *CandleBody `json:"candle,omitempty"`
}

type SignalBody struct {
	PriceDelta float64 `json:"price_delta"`
	Volume     float64 `json:"volume"`
	Volatility float64 `json:"volatility"`
}

type CandleBody struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// BoxerResp is the public view of one record.
type BoxerResp struct {
	Token        string `json:"token"`
	Health       uint8  `json:"health"`
	AttackPower  uint8  `json:"attack_power"`
	DefensePower uint8  `json:"defense_power"`
	LastMove     string `json:"last_move"`
	Revision     uint64 `json:"revision"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

type MoveResp struct {
	Boxer        BoxerResp `json:"boxer"`
	TransitionID string    `json:"transition_id"`
	Animation    string    `json:"animation"`
}

type HistoryEntry struct {
	TransitionID string     `json:"transition_id"`
	Revision     uint64     `json:"revision"`
	Signal       SignalBody `json:"signal"`
	AttackPower  uint8      `json:"attack_power"`
	DefensePower uint8      `json:"defense_power"`
	Move         string     `json:"move"`
	RecordedAt   string     `json:"recorded_at"`
}

type HistoryResp struct {
	Token   string         `json:"token"`
	Entries []HistoryEntry `json:"entries"`
}

type ErrorResp struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// HELLO (renderer -> server)
type HelloMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RendererName    string   `json:"renderer_name"`
	Tokens          []string `json:"tokens,omitempty"` // empty: all boxers
	MaxQueue        int      `json:"max_queue,omitempty"`
}

// WELCOME (server -> renderer)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ANIMATION (server -> renderer)
type AnimationMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Token           string `json:"token"`
	Move            string `json:"move"`
	Revision        uint64 `json:"revision"`
	TS              int64  `json:"ts"` // unix millis
}
