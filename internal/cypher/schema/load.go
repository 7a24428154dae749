package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

type descriptor struct {
	NodeProps     map[string][]Property `json:"node_props"`
	RelProps      map[string][]Property `json:"rel_props"`
	Relationships []Relationship        `json:"relationships"`
}

// Parse decodes a schema descriptor and returns an indexed snapshot.
func Parse(data []byte) (*Schema, error) {
	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode schema descriptor: %w", err)
	}
	if len(d.NodeProps) == 0 {
		return nil, fmt.Errorf("schema descriptor has no node_props")
	}
	for label, props := range d.NodeProps {
		for i, p := range props {
			if p.Name == "" {
				return nil, fmt.Errorf("node %s property %d has no name", label, i)
			}
		}
	}
	return New(d.NodeProps, d.RelProps, d.Relationships), nil
}

// LoadFile reads a schema descriptor from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(data)
}

// MarshalJSON writes the descriptor shape.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptor{
		NodeProps:     s.NodeProps,
		RelProps:      s.RelProps,
		Relationships: s.Relationships,
	})
}
