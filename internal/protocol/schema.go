package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema names accepted by Validate.
const (
	SchemaCreateBoxer = "create_boxer.schema.json"
	SchemaMarketMove  = "market_move.schema.json"
	SchemaHello       = "hello.schema.json"
	SchemaAnimation   = "animation.schema.json"
)

const schemaBaseURL = "https://marketmelee.ai/schemas/"

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		names := []string{SchemaCreateBoxer, SchemaMarketMove, SchemaHello, SchemaAnimation}
		for _, name := range names {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("add %s: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			s, err := c.Compile(schemaBaseURL + name)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			out[name] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks raw JSON against one of the embedded schemas. Numbers are
// kept as json.Number, so a magnitude float64 cannot hold still passes the
// shape check and is left to the domain validation.
func Validate(schema string, raw []byte) error {
	all, err := compileSchemas()
	if err != nil {
		return err
	}
	s, ok := all[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode: trailing data after JSON value")
	}
	return s.Validate(v)
}
