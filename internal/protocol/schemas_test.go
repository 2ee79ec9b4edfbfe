package protocol_test

import (
	"encoding/json"
	"testing"

	"marketmelee.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	valid := []struct {
		schema string
		body   string
	}{
		{protocol.SchemaCreateBoxer, `{"token":"BTC-boxer"}`},
		{protocol.SchemaMarketMove, `{"signal":{"price_delta":-10,"volume":1,"volatility":1}}`},
		{protocol.SchemaMarketMove, `{"candle":{"open":100,"high":120,"low":80,"close":110,"volume":42}}`},
		{protocol.SchemaMarketMove, `{"signal":{"price_delta":1e400,"volume":0,"volatility":0}}`},
		{protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0","renderer_name":"ring-1","tokens":["BTC-boxer"]}`},
	}
	for _, c := range valid {
		if err := protocol.Validate(c.schema, []byte(c.body)); err != nil {
			t.Fatalf("%s: %s: %v", c.schema, c.body, err)
		}
	}

	anim, _ := json.Marshal(protocol.AnimationMsg{
		Type:            protocol.TypeAnimation,
		ProtocolVersion: protocol.Version,
		Token:           "BTC-boxer",
		Move:            "Combo",
		Revision:        2,
		TS:              1700000000000,
	})
	if err := protocol.Validate(protocol.SchemaAnimation, anim); err != nil {
		t.Fatalf("animation: %v", err)
	}
}

func TestSchemas_RejectSamples(t *testing.T) {
	invalid := []struct {
		schema string
		body   string
	}{
		{protocol.SchemaCreateBoxer, `{}`},
		{protocol.SchemaCreateBoxer, `{"token":""}`},
		{protocol.SchemaCreateBoxer, `{"token":"a","extra":1}`},
		{protocol.SchemaMarketMove, `{}`},
		{protocol.SchemaMarketMove, `{"signal":{"price_delta":1,"volume":1,"volatility":1},"candle":{"open":1,"high":1,"low":1,"close":1,"volume":1}}`},
		{protocol.SchemaMarketMove, `{"signal":{"price_delta":"1","volume":1,"volatility":1}}`},
		{protocol.SchemaMarketMove, `{"candle":{"open":1,"high":1,"low":1,"close":1}}`},
		{protocol.SchemaMarketMove, `{"signal":{"price_delta":1,"volume":1,"volatility":1}} {}`},
		{protocol.SchemaHello, `{"type":"ACT","protocol_version":"1.0","renderer_name":"x"}`},
		{protocol.SchemaAnimation, `{"type":"ANIMATION","protocol_version":"1.0","token":"t","move":"Kick","revision":1,"ts":0}`},
	}
	for _, c := range invalid {
		if err := protocol.Validate(c.schema, []byte(c.body)); err == nil {
			t.Fatalf("%s: expected rejection of %s", c.schema, c.body)
		}
	}
}

func TestValidate_UnknownSchemaAndBadJSON(t *testing.T) {
	if err := protocol.Validate("nope.schema.json", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown schema error")
	}
	if err := protocol.Validate(protocol.SchemaCreateBoxer, []byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
