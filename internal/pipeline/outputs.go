package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// Outputs maps each completed task to its output text.
//
// Keys keep the order in which tasks first completed. Setting a task that
// is already present replaces its value without moving it. The JSON form is
// an object whose keys follow that order.
type Outputs struct {
	keys   []registry.TaskID
	values map[registry.TaskID]string
}

// NewOutputs returns an empty mapping.
func NewOutputs() *Outputs {
	return &Outputs{values: make(map[registry.TaskID]string)}
}

// Set records text for task.
func (o *Outputs) Set(task registry.TaskID, text string) {
	if o.values == nil {
		o.values = make(map[registry.TaskID]string)
	}
	if _, ok := o.values[task]; !ok {
		o.keys = append(o.keys, task)
	}
	o.values[task] = text
}

// Get returns the output of task.
func (o *Outputs) Get(task registry.TaskID) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o.values[task]
	return v, ok
}

// Len returns the number of distinct tasks.
func (o *Outputs) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the tasks in insertion order.
func (o *Outputs) Keys() []registry.TaskID {
	if o == nil {
		return nil
	}
	return append([]registry.TaskID(nil), o.keys...)
}

// Map returns an unordered copy.
func (o *Outputs) Map() map[string]string {
	m := make(map[string]string, o.Len())
	if o == nil {
		return m
	}
	for k, v := range o.values {
		m[string(k)] = v
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (o *Outputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if o != nil {
		for i, k := range o.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(string(k))
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(o.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping key order.
func (o *Outputs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = Outputs{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("outputs: expected object, got %v", tok)
	}

	out := NewOutputs()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("outputs: expected string key, got %v", tok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("outputs: value of %q: %w", key, err)
		}
		out.Set(registry.TaskID(key), val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*o = *out
	return nil
}
