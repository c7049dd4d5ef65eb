// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// argumentsSchema accepts the shapes engines send for shell calls:
// {"command": "ls -la"}, {"command": ["ls", "-la"]}, and the
// exec_command form {"cmd": "ls -la"}.
const argumentsSchema = `{
	"type": "object",
	"properties": {
		"command": {
			"oneOf": [
				{"type": "string", "minLength": 1},
				{"type": "array", "minItems": 1, "items": {"type": "string"}}
			]
		},
		"cmd": {"type": "string", "minLength": 1},
		"workdir": {"type": "string"},
		"timeout_ms": {"type": "integer", "minimum": 1}
	},
	"anyOf": [
		{"required": ["command"]},
		{"required": ["cmd"]}
	]
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(argumentsSchema))
	if err != nil {
		panic("tool: compiling arguments schema: " + err.Error())
	}
	return schema
}

// shellArguments is a validated shell call.
type shellArguments struct {
	// Script is set for string commands, run through the shell.
	Script string

	// Argv is set for array commands, executed directly.
	Argv []string

	Workdir string
	Timeout time.Duration
}

// parseArguments validates raw and decodes it. raw may be a JSON
// object or a JSON string holding one.
func parseArguments(raw json.RawMessage) (shellArguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return shellArguments{}, errors.New("tool call has no arguments")
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return shellArguments{}, fmt.Errorf("decoding arguments string: %w", err)
		}
		raw = json.RawMessage(strings.TrimSpace(encoded))
	}

	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return shellArguments{}, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, problem := range result.Errors() {
			problems = append(problems, problem.String())
		}
		return shellArguments{}, fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}

	var wire struct {
		Command   json.RawMessage `json:"command"`
		Cmd       string          `json:"cmd"`
		Workdir   string          `json:"workdir"`
		TimeoutMS int64           `json:"timeout_ms"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return shellArguments{}, fmt.Errorf("decoding arguments: %w", err)
	}

	arguments := shellArguments{
		Workdir: wire.Workdir,
		Timeout: time.Duration(wire.TimeoutMS) * time.Millisecond,
	}
	switch {
	case len(wire.Command) > 0 && wire.Command[0] == '[':
		if err := json.Unmarshal(wire.Command, &arguments.Argv); err != nil {
			return shellArguments{}, fmt.Errorf("decoding command: %w", err)
		}
	case len(wire.Command) > 0:
		if err := json.Unmarshal(wire.Command, &arguments.Script); err != nil {
			return shellArguments{}, fmt.Errorf("decoding command: %w", err)
		}
	default:
		arguments.Script = wire.Cmd
	}
	return arguments, nil
}
