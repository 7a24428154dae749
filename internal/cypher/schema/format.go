package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// maxPromptValues caps the enum values rendered per property.
const maxPromptValues = 10

// Format renders the schema for model prompts.
func (s *Schema) Format() string {
	var b strings.Builder

	b.WriteString("Node properties:\n")
	for _, label := range s.Labels() {
		writeProps(&b, label, s.NodeProps[label])
	}

	if len(s.RelProps) > 0 {
		b.WriteString("Relationship properties:\n")
		for _, t := range sortedKeys(s.RelProps) {
			writeProps(&b, t, s.RelProps[t])
		}
	}

	b.WriteString("The relationships:\n")
	for _, r := range s.Relationships {
		fmt.Fprintf(&b, "(:%s)-[:%s]->(:%s)\n", r.Start, r.Type, r.End)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary is a short label and relationship listing used by the guardrail.
func (s *Schema) Summary() string {
	return fmt.Sprintf("Labels: %s\nRelationship types: %s",
		strings.Join(s.Labels(), ", "), strings.Join(s.RelTypes(), ", "))
}

func writeProps(b *strings.Builder, name string, props []Property) {
	fmt.Fprintf(b, "- **%s**\n", name)
	for _, p := range props {
		fmt.Fprintf(b, "  - `%s`: %s", p.Name, p.Type)
		if details := describe(p); details != "" {
			b.WriteString(" ")
			b.WriteString(details)
		}
		b.WriteString("\n")
	}
}

func describe(p Property) string {
	switch {
	case p.IsEnum():
		values := p.Values
		if len(values) > maxPromptValues {
			values = values[:maxPromptValues]
		}
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = strconv.Quote(v)
		}
		return "Available options: [" + strings.Join(quoted, ", ") + "]"
	case p.Type.IsNumeric() && (p.Min != nil || p.Max != nil):
		return fmt.Sprintf("Min: %s, Max: %s", bound(p.Min), bound(p.Max))
	case p.Type == TypeList && p.MinSize != nil && p.MaxSize != nil:
		return fmt.Sprintf("Min Size: %d, Max Size: %d", *p.MinSize, *p.MaxSize)
	case len(p.Values) > 0:
		values := p.Values
		if len(values) > 3 {
			values = values[:3]
		}
		return "Example: " + strconv.Quote(strings.Join(values, ", "))
	}
	return ""
}

func bound(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
