package transport

import (
	"encoding/json"
	"fmt"
)

// Envelope is the normalized remote response. The platform wraps payloads in
// two different envelope shapes depending on the endpoint:
//
//	{"statusCode": 200, "result": {"isError": false, "result": {...}}}
//	{"isError": false, "message": "...", "result": {...}}
//
// Normalize collapses both into one type by walking nested "result" keys,
// so call sites never pattern-match a single shape.
type Envelope struct {
	// StatusCode is the application-level status reported inside the body,
	// when present. It is distinct from the HTTP status.
	StatusCode int
	// IsError is true if any traversed level flagged an error.
	IsError bool
	// Message is the first non-empty message found while unwrapping.
	Message string
	// Result is the innermost payload.
	Result json.RawMessage
	// Raw is the unmodified response body.
	Raw json.RawMessage
}

// Normalize decodes a response body into an Envelope. Bare arrays are passed
// through as the payload; objects are unwrapped level by level while the
// current node itself contains a "result" key, accumulating isError and
// message along the way.
func Normalize(body []byte) (*Envelope, error) {
	env := &Envelope{Raw: append(json.RawMessage(nil), body...)}

	var top any
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	node, ok := top.(map[string]any)
	if !ok {
		// Bare array (or scalar): the body is the payload.
		env.Result = env.Raw
		return env, nil
	}

	for {
		if v, ok := node["isError"].(bool); ok && v {
			env.IsError = true
		}
		if m, ok := node["message"].(string); ok && m != "" && env.Message == "" {
			env.Message = m
		}
		if sc, ok := node["statusCode"].(float64); ok && env.StatusCode == 0 {
			env.StatusCode = int(sc)
		}

		inner, ok := node["result"]
		if !ok {
			break
		}
		if m, ok := inner.(map[string]any); ok {
			node = m
			continue
		}
		// "result" holds a non-object payload (array, string, number).
		raw, err := json.Marshal(inner)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		env.Result = raw
		return env, nil
	}

	raw, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	env.Result = raw
	return env, nil
}

// Decode unmarshals the innermost payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Result) == 0 {
		return fmt.Errorf("%w: empty result", ErrMalformedBody)
	}
	if err := json.Unmarshal(e.Result, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// UnmarshalArray decodes list payloads that arrive either as a bare JSON
// array or wrapped in the platform's {"$values": [...]} shape.
func UnmarshalArray(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty list payload", ErrMalformedBody)
	}

	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		return nil
	}

	var wrapped struct {
		Values json.RawMessage `json:"$values"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if wrapped.Values == nil {
		// Object without $values: treat as an empty list rather than failing,
		// absence of matches is a valid outcome.
		return nil
	}
	if err := json.Unmarshal(wrapped.Values, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
