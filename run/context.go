package run

import (
	"encoding/json"
	"fmt"
)

// Context is the ordered, append-only key-to-history store carried through
// one workflow run. Add appends a value to a key's history; Get returns the
// latest value; GetAll returns the full history in insertion order. Steps
// that need everything written under a key (say, every prior error) read
// the history instead of only the last value.
//
// A Context is owned exclusively by its run and never shared across runs.
// Step handlers for one run execute strictly sequentially, so the Context
// performs no locking.
type Context struct {
	entries []*contextEntry
	index   map[string]*contextEntry
}

type contextEntry struct {
	Key    string `json:"key"`
	Values []any  `json:"values"`
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{index: make(map[string]*contextEntry)}
}

// Add appends value to the history for key. Keys keep the order of their
// first write.
func (c *Context) Add(key string, value any) {
	e, ok := c.index[key]
	if !ok {
		e = &contextEntry{Key: key}
		if c.index == nil {
			c.index = make(map[string]*contextEntry)
		}
		c.index[key] = e
		c.entries = append(c.entries, e)
	}
	e.Values = append(e.Values, value)
}

// Get returns the latest value written under key.
func (c *Context) Get(key string) (any, bool) {
	e, ok := c.index[key]
	if !ok || len(e.Values) == 0 {
		return nil, false
	}
	return e.Values[len(e.Values)-1], true
}

// GetAll returns a copy of the full history for key in insertion order.
// The result is nil when the key was never written.
func (c *Context) GetAll(key string) []any {
	e, ok := c.index[key]
	if !ok {
		return nil
	}
	out := make([]any, len(e.Values))
	copy(out, e.Values)
	return out
}

// Keys returns all keys in first-write order.
func (c *Context) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// Len returns the number of distinct keys.
func (c *Context) Len() int {
	return len(c.entries)
}

// Clone returns a deep copy of the context structure. Values themselves are
// copied by reference.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	cp := NewContext()
	for _, e := range c.entries {
		values := make([]any, len(e.Values))
		copy(values, e.Values)
		ce := &contextEntry{Key: e.Key, Values: values}
		cp.index[e.Key] = ce
		cp.entries = append(cp.entries, ce)
	}
	return cp
}

// MarshalJSON encodes the context as an ordered array of {key, values}
// pairs so the insertion order survives persistence.
func (c *Context) MarshalJSON() ([]byte, error) {
	if c == nil || len(c.entries) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(c.entries)
}

// UnmarshalJSON decodes the ordered array form produced by MarshalJSON.
func (c *Context) UnmarshalJSON(data []byte) error {
	var entries []*contextEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("run: unmarshal context: %w", err)
	}

	c.entries = entries
	c.index = make(map[string]*contextEntry, len(entries))
	for _, e := range entries {
		c.index[e.Key] = e
	}
	return nil
}
