package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://multigrid.ai/schemas/"

var schemaNames = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeInput:   "input.schema.json",
	TypeControl: "control.schema.json",
	TypeObs:     "obs.schema.json",
	TypeStep:    "step.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaNames {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("add %s: %w", name, err)
			return
		}
	}
	schemas = make(map[string]*jsonschema.Schema, len(schemaNames))
	for typ, name := range schemaNames {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		schemas[typ] = s
	}
}

// Validate checks a raw message against the schema registered for msgType.
// Types without a schema pass.
func Validate(msgType string, raw []byte) error {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	s := schemas[msgType]
	if s == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
