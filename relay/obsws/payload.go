package obsws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotObject is returned when a payload is valid JSON but not an object.
var ErrNotObject = errors.New("payload must be a JSON object")

// Payload is a JSON object that remembers the order of its fields. Values are
// kept as raw JSON so they pass through the relay untouched.
type Payload = orderedmap.OrderedMap[string, json.RawMessage]

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return orderedmap.New[string, json.RawMessage]()
}

// ParsePayload decodes a JSON object into a Payload.
func ParsePayload(data []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return nil, ErrNotObject
		}
		return nil, fmt.Errorf("invalid JSON payload")
	}

	p := NewPayload()
	if err := json.Unmarshal(trimmed, p); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return p, nil
}

// Field decodes the named field into dst. It reports false when the field is
// missing or does not decode into dst.
func Field(p *Payload, name string, dst any) bool {
	if p == nil {
		return false
	}
	raw, ok := p.Get(name)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// Status returns the "status" field of a response, or "" if absent.
func Status(p *Payload) string {
	var status string
	Field(p, "status", &status)
	return status
}

// buildRequest assembles the frame sent upstream. The caller's payload fields
// follow the protocol keys in their original order.
func buildRequest(requestType, messageID string, data *Payload) ([]byte, error) {
	frame := NewPayload()

	rt, err := json.Marshal(requestType)
	if err != nil {
		return nil, err
	}
	id, err := json.Marshal(messageID)
	if err != nil {
		return nil, err
	}
	frame.Set(keyRequestType, rt)
	frame.Set(keyMessageID, id)

	if data != nil {
		for pair := data.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Key == keyMessageID || pair.Key == keyRequestType {
				continue
			}
			frame.Set(pair.Key, pair.Value)
		}
	}

	return EncodePayload(frame)
}

// EncodePayload renders p as compact JSON in field order. Strings are not
// HTML-escaped, so values leave the relay as they arrived.
func EncodePayload(p *Payload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for pair := p.Oldest(); pair != nil; pair = pair.Next() {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, pair.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := json.Compact(&buf, pair.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", pair.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
