package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var errNoJSON = errors.New("no JSON object found")

// ExtractJSON pulls the JSON object out of a model reply, dropping markdown fences
// and any prose around it.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

// decode extracts, checks the shape against schema, then unmarshals into T
func decode[T any](raw string, schema *jsonschema.Schema) (T, error) {
	var out T

	body, err := ExtractJSON(raw)
	if err != nil {
		return out, &ParseError{Err: err, Raw: raw}
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return out, &ParseError{Err: err, Raw: raw}
	}

	if err := schema.Validate(doc); err != nil {
		return out, &ParseError{Err: err, Raw: raw}
	}

	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, &ParseError{Err: err, Raw: raw}
	}
	return out, nil
}
