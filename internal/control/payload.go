package control

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"
)

// GrammarMajor is the only payload major version this parser accepts.
const GrammarMajor = "v1"

const (
	keyObjective = "objective_complete"
	keySession   = "session_complete"
	keyVersion   = "version"
)

var payloadSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		keyObjective: map[string]any{"type": "boolean"},
		keySession:   map[string]any{"type": "boolean"},
		keyVersion:   map[string]any{"type": "string"},
	},
}

const schemaURL = "schema://control-payload.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if compileErr = c.AddResource(schemaURL, payloadSchema); compileErr != nil {
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

type payload struct {
	ObjectiveComplete *bool   `json:"objective_complete"`
	SessionComplete   *bool   `json:"session_complete"`
	Version           *string `json:"version"`
}

// decode turns one payload into its blocks.
func decode(raw string) []Block {
	unknown := func(format string, args ...any) []Block {
		return []Block{{Kind: Unknown, Raw: raw, Reason: fmt.Sprintf(format, args...)}}
	}

	body := strings.TrimSpace(raw)
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return unknown("payload is not JSON: %v", err)
	}

	sch, err := schema()
	if err != nil {
		return unknown("payload schema: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		return unknown("payload rejected: %v", err)
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return unknown("payload decode: %v", err)
	}

	var keys []string
	if p.ObjectiveComplete != nil {
		keys = append(keys, keyObjective)
	}
	if p.SessionComplete != nil {
		keys = append(keys, keySession)
	}
	if p.Version != nil {
		keys = append(keys, keyVersion)
		if !supportedVersion(*p.Version) {
			return unknown("unsupported grammar version %q", *p.Version)
		}
	}
	if p.ObjectiveComplete == nil && p.SessionComplete == nil {
		return unknown("no recognized directive keys")
	}

	var out []Block
	if p.ObjectiveComplete != nil && *p.ObjectiveComplete {
		out = append(out, Block{Kind: ObjectiveComplete, Raw: raw, Keys: keys})
	}
	if p.SessionComplete != nil && *p.SessionComplete {
		out = append(out, Block{Kind: SessionComplete, Raw: raw, Keys: keys})
	}
	if len(out) == 0 {
		out = append(out, Block{Kind: Continue, Raw: raw, Keys: keys})
	}
	return out
}

// supportedVersion accepts "1", "1.2", "v1.0.3" and the like.
func supportedVersion(v string) bool {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v) && semver.Major(v) == GrammarMajor
}
