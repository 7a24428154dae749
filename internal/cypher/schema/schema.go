// Package schema holds the immutable graph schema snapshot consulted by the
// query synthesizer and validator.
package schema

import (
	"sort"
	"strings"
)

// PropertyType is the declared type of a node or relationship property.
type PropertyType string

const (
	TypeString   PropertyType = "STRING"
	TypeInteger  PropertyType = "INTEGER"
	TypeFloat    PropertyType = "FLOAT"
	TypeList     PropertyType = "LIST"
	TypeDateTime PropertyType = "DATE_TIME"
	TypeBoolean  PropertyType = "BOOLEAN"
)

// IsNumeric reports whether range checks apply to the type.
func (t PropertyType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// Property describes one property of a label or relationship type.
// Min and Max are nil when the range is unbounded.
type Property struct {
	Name          string       `json:"property" yaml:"property"`
	Type          PropertyType `json:"type" yaml:"type"`
	Values        []string     `json:"values,omitempty" yaml:"values,omitempty"`
	DistinctCount *int         `json:"distinct_count,omitempty" yaml:"distinct_count,omitempty"`
	Min           *float64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64     `json:"max,omitempty" yaml:"max,omitempty"`
	MinSize       *int         `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize       *int         `json:"max_size,omitempty" yaml:"max_size,omitempty"`
}

// IsEnum reports whether the observed distinct values exactly match the declared list.
func (p Property) IsEnum() bool {
	return p.Type == TypeString && len(p.Values) > 0 && p.DistinctCount != nil && len(p.Values) == *p.DistinctCount
}

// HasValue reports case-insensitive membership in the enum values.
func (p Property) HasValue(v string) bool {
	for _, candidate := range p.Values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}

// InRange reports whether v lies within [Min, Max]; missing bounds are open.
func (p Property) InRange(v float64) bool {
	if p.Min != nil && v < *p.Min {
		return false
	}
	if p.Max != nil && v > *p.Max {
		return false
	}
	return true
}

// Relationship is a declared (start)-[type]->(end) triple.
type Relationship struct {
	Start string `json:"start" yaml:"start"`
	Type  string `json:"type" yaml:"type"`
	End   string `json:"end" yaml:"end"`
}

// Schema is a read-only snapshot. Build it with New or the loaders; never mutate
// one that has been handed to a pipeline.
type Schema struct {
	NodeProps     map[string][]Property `json:"node_props"`
	RelProps      map[string][]Property `json:"rel_props"`
	Relationships []Relationship        `json:"relationships"`

	nodeIndex map[string]map[string]Property
	relIndex  map[string]map[string]Property
	relTypes  map[string]struct{}
	triples   map[Relationship]struct{}
}

// New builds an indexed snapshot. The inputs are copied.
func New(nodeProps, relProps map[string][]Property, rels []Relationship) *Schema {
	s := &Schema{
		NodeProps:     copyProps(nodeProps),
		RelProps:      copyProps(relProps),
		Relationships: append([]Relationship(nil), rels...),
	}
	s.index()
	return s
}

func copyProps(in map[string][]Property) map[string][]Property {
	out := make(map[string][]Property, len(in))
	for k, v := range in {
		out[k] = append([]Property(nil), v...)
	}
	return out
}

func (s *Schema) index() {
	s.nodeIndex = indexProps(s.NodeProps)
	s.relIndex = indexProps(s.RelProps)
	s.relTypes = make(map[string]struct{}, len(s.RelProps)+len(s.Relationships))
	s.triples = make(map[Relationship]struct{}, len(s.Relationships))
	for t := range s.RelProps {
		s.relTypes[t] = struct{}{}
	}
	for _, r := range s.Relationships {
		s.relTypes[r.Type] = struct{}{}
		s.triples[r] = struct{}{}
	}
}

func indexProps(in map[string][]Property) map[string]map[string]Property {
	out := make(map[string]map[string]Property, len(in))
	for label, props := range in {
		m := make(map[string]Property, len(props))
		for _, p := range props {
			m[p.Name] = p
		}
		out[label] = m
	}
	return out
}

// HasLabel reports whether the node label is declared.
func (s *Schema) HasLabel(label string) bool {
	_, ok := s.nodeIndex[label]
	return ok
}

// HasRelType reports whether the relationship type is declared, either with
// properties or as part of a relationship triple.
func (s *Schema) HasRelType(relType string) bool {
	_, ok := s.relTypes[relType]
	return ok
}

// NodeProperty looks up a property declared on a node label.
func (s *Schema) NodeProperty(label, name string) (Property, bool) {
	p, ok := s.nodeIndex[label][name]
	return p, ok
}

// RelProperty looks up a property declared on a relationship type.
func (s *Schema) RelProperty(relType, name string) (Property, bool) {
	p, ok := s.relIndex[relType][name]
	return p, ok
}

// HasRelationship reports whether the exact directed triple is declared.
func (s *Schema) HasRelationship(start, relType, end string) bool {
	_, ok := s.triples[Relationship{Start: start, Type: relType, End: end}]
	return ok
}

// RelationshipsOfType returns the declared triples for a type.
func (s *Schema) RelationshipsOfType(relType string) []Relationship {
	var out []Relationship
	for _, r := range s.Relationships {
		if r.Type == relType {
			out = append(out, r)
		}
	}
	return out
}

// Labels returns node labels in sorted order.
func (s *Schema) Labels() []string {
	return sortedKeys(s.NodeProps)
}

// RelTypes returns relationship types in sorted order.
func (s *Schema) RelTypes() []string {
	out := make([]string, 0, len(s.relTypes))
	for t := range s.relTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string][]Property) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
