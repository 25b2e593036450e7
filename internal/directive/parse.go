// Package directive decodes transform directives.
//
// Two syntaxes are accepted. A JSON object carried as the first key of the
// query string wins when it parses; otherwise the compact token syntax of a
// path segment is used, e.g. "w_300,h_200;g:north". Parse produces the raw
// ordered Directives, Decode types and validates them into Settings.
package directive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/maauso/transform-api/internal/failure"
)

var (
	optionSep = regexp.MustCompile(`[,;]`)
	keySep    = regexp.MustCompile(`[_:]`)
)

// errNotObject marks JSON input that parsed but is not an object.
var errNotObject = errors.New("directive: JSON directive is not an object")

// Parse decodes raw directive input. rawQueryKey is the first key of the
// request query string and rawPathSegment the options path segment; either
// may be empty.
func Parse(rawQueryKey, rawPathSegment string) (Directives, error) {
	if rawQueryKey != "" {
		if d, err := parseJSON(rawQueryKey); err == nil {
			return d, nil
		}
	}

	if rawPathSegment == "" {
		return Directives{}, failure.Invalid("directive.parse", "no directive in query or path")
	}

	d := parseTokens(rawPathSegment)
	if d.Len() == 0 {
		return Directives{}, failure.Invalid("directive.parse", "no usable options in %q", rawPathSegment)
	}
	return d, nil
}

// parseTokens applies the compact token syntax.
func parseTokens(segment string) Directives {
	var d Directives
	for _, option := range optionSep.Split(segment, -1) {
		if !keySep.MatchString(option) {
			continue
		}
		parts := keySep.Split(option, -1)
		key := strings.ToLower(parts[0])
		if len(parts) > 2 {
			d.add(key, Sequence(parts[1:]...))
		} else {
			d.add(key, Scalar(parts[1]))
		}
	}
	return d
}

// parseJSON decodes a JSON object directive, preserving key order.
func parseJSON(raw string) (Directives, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Directives{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Directives{}, errNotObject
	}

	var d Directives
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Directives{}, err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Directives{}, err
		}
		v, skip, err := jsonValue(raw)
		if err != nil {
			return Directives{}, fmt.Errorf("directive: key %q: %w", key, err)
		}
		if skip {
			continue
		}
		d.add(strings.ToLower(key), v)
	}
	if _, err := dec.Token(); err != nil {
		return Directives{}, err
	}
	if dec.More() {
		return Directives{}, errNotObject
	}
	return d, nil
}

// jsonValue converts a JSON member value. Null members are skipped.
func jsonValue(raw json.RawMessage) (Value, bool, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return Value{}, true, nil
	}
	if len(raw) > 0 && raw[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Value{}, false, err
		}
		items := make([]string, 0, len(elems))
		for _, e := range elems {
			s, err := jsonScalar(e)
			if err != nil {
				return Value{}, false, err
			}
			items = append(items, s)
		}
		return Sequence(items...), false, nil
	}
	s, err := jsonScalar(raw)
	if err != nil {
		return Value{}, false, err
	}
	return Scalar(s), false, nil
}

func jsonScalar(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("unsupported JSON value %s", string(raw))
	}
}
