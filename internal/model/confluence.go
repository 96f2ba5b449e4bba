package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Confluence is a named rule descriptor supplied by the client. Every field
// other than name is kept verbatim in Params for the evaluator to interpret.
type Confluence struct {
	Name   string
	Params map[string]json.RawMessage
}

// MarshalJSON flattens Params next to the name.
func (c Confluence) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(c.Params)+1)
	for k, v := range c.Params {
		fields[k] = v
	}

	name, err := json.Marshal(c.Name)
	if err != nil {
		return nil, err
	}
	fields["name"] = name

	return json.Marshal(fields)
}

// UnmarshalJSON implements custom JSON unmarshaling for Confluence.
func (c *Confluence) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("confluence must be an object: %w", err)
	}

	c.Name = ""
	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &c.Name); err != nil {
			return fmt.Errorf("invalid confluence name: %w", err)
		}
		delete(fields, "name")
	}

	c.Params = nil
	if len(fields) > 0 {
		c.Params = fields
	}
	return nil
}

// Param decodes the named parameter into v. It reports false if the
// parameter is absent.
func (c *Confluence) Param(key string, v any) (bool, error) {
	raw, ok := c.Params[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("invalid parameter %q on confluence %q: %w", key, c.Name, err)
	}
	return true, nil
}

// Clone returns a deep copy of the confluence, parameter bytes included.
func (c Confluence) Clone() Confluence {
	if c.Params == nil {
		return c
	}
	params := make(map[string]json.RawMessage, len(c.Params))
	for k, v := range c.Params {
		params[k] = bytes.Clone(v)
	}
	c.Params = params
	return c
}

// CloneConfluences deep-copies a confluence list.
func CloneConfluences(list []Confluence) []Confluence {
	if list == nil {
		return nil
	}
	out := make([]Confluence, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}

// ChartUpdate carries a chart_update frame to the evaluator. The payload
// schema is defined by the evaluator, so the frame is passed through as-is.
type ChartUpdate struct {
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Decode unmarshals the update payload into v.
func (u ChartUpdate) Decode(v any) error {
	return json.Unmarshal(u.Payload, v)
}
