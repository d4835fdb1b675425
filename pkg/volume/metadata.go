package volume

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SpaceKey is the reserved metadata key recording an image's coordinate space.
const SpaceKey = "NRRD_space"

// Metadata is an ordered string mapping. Keys keep the order they were first
// set in; setting an existing key overwrites its value in place.
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata returns a mapping holding the given key/value pairs in order.
// It panics when given an odd number of arguments.
func NewMetadata(kv ...string) *Metadata {
	if len(kv)%2 != 0 {
		panic("volume: NewMetadata needs key/value pairs")
	}
	m := &Metadata{values: make(map[string]string, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// Set stores value under key.
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Merge copies every entry of other into m. Colliding keys are overwritten
// with other's value; new keys are appended in other's order.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// Clone returns an independent copy.
func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	c.Merge(m)
	return c
}

// MarshalYAML emits the entries as a mapping in insertion order.
func (m *Metadata) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if m == nil {
		return node, nil
	}
	for _, k := range m.keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.values[k]},
		)
	}
	return node, nil
}

// UnmarshalYAML reads a mapping of scalars, keeping document order.
func (m *Metadata) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: metadata must be a mapping", value.Line)
	}
	*m = Metadata{values: make(map[string]string, len(value.Content)/2)}
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: metadata entries must be scalars", k.Line)
		}
		m.Set(k.Value, v.Value)
	}
	return nil
}
