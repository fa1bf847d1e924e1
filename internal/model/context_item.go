package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ContextItem is one retrieved item, kept in the shape the index returned it.
type ContextItem struct {
	Raw json.RawMessage
}

func NewTextItem(text string) ContextItem {
	raw, _ := json.Marshal(text)
	return ContextItem{Raw: raw}
}

func (c ContextItem) MarshalJSON() ([]byte, error) {
	if len(c.Raw) == 0 {
		return []byte("null"), nil
	}
	return c.Raw, nil
}

func (c *ContextItem) UnmarshalJSON(data []byte) error {
	c.Raw = append(c.Raw[:0], data...)
	return nil
}

// AsString reports whether the item is a bare JSON string.
func (c ContextItem) AsString() (string, bool) {
	var s string
	if err := json.Unmarshal(c.Raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Fields decodes object shaped items; ok is false for anything else.
func (c ContextItem) Fields() (map[string]any, bool) {
	trimmed := bytes.TrimSpace(c.Raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, false
	}
	return m, true
}

// Render formats the item for the prompt: strings verbatim, anything else
// as indented JSON.
func (c ContextItem) Render() string {
	if s, ok := c.AsString(); ok {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, c.Raw, "", "  "); err != nil {
		return fmt.Sprintf("%v", string(c.Raw))
	}
	return buf.String()
}

// Text is the trimmed readable content of the item.
func (c ContextItem) Text() string {
	if s, ok := c.AsString(); ok {
		return strings.TrimSpace(s)
	}
	if fields, ok := c.Fields(); ok {
		for _, key := range []string{"content", "text"} {
			if s, ok := fields[key].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return strings.TrimSpace(c.Render())
}

// Metadata returns the item's metadata with values stringified.
func (c ContextItem) Metadata() map[string]string {
	fields, ok := c.Fields()
	if !ok {
		return nil
	}
	raw, ok := fields["metadata"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = Stringify(v)
	}
	return out
}

// Source names where the item came from: metadata source, then filename.
func (c ContextItem) Source() string {
	meta := c.Metadata()
	if s := meta["source"]; s != "" {
		return s
	}
	if s := meta["filename"]; s != "" {
		return s
	}
	return "unknown"
}

// Stringify turns a decoded JSON value into a metadata string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, float64, json.Number:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
