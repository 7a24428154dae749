// Package catalog holds the named, parameterized Cypher queries the tool router
// can dispatch to instead of synthesizing a statement.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
)

//go:embed queries.yaml
var defaultQueries []byte

var paramRe = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

type Parameter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Optional    bool   `yaml:"optional"`
}

type Query struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Statement   string      `yaml:"statement"`
	Parameters  []Parameter `yaml:"parameters"`
}

type file struct {
	Version int     `yaml:"version"`
	Queries []Query `yaml:"queries"`
}

// Catalog is immutable after loading.
type Catalog struct {
	queries map[string]Query
	names   []string
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultQueries))
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and checks a YAML catalog. Statements containing write clauses or
// undeclared parameters are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{queries: make(map[string]Query, len(doc.Queries))}
	for i, q := range doc.Queries {
		q.Name = strings.TrimSpace(q.Name)
		q.Statement = strings.TrimSpace(q.Statement)
		if q.Name == "" || q.Statement == "" {
			return nil, fmt.Errorf("catalog entry %d: name and statement are required", i)
		}
		if _, dup := c.queries[q.Name]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate name", q.Name)
		}
		if wcs := validator.FindWriteClauses(q.Statement); len(wcs) > 0 {
			return nil, fmt.Errorf("catalog entry %q: contains write clause %s", q.Name, wcs[0])
		}
		declared := map[string]struct{}{}
		for _, p := range q.Parameters {
			declared[p.Name] = struct{}{}
		}
		for _, m := range paramRe.FindAllStringSubmatch(q.Statement, -1) {
			if _, ok := declared[m[1]]; !ok {
				return nil, fmt.Errorf("catalog entry %q: parameter $%s is not declared", q.Name, m[1])
			}
		}
		c.queries[q.Name] = q
		c.names = append(c.names, q.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Get returns the named query.
func (c *Catalog) Get(name string) (Query, bool) {
	q, ok := c.queries[name]
	return q, ok
}

// Names returns query names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of queries.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Resolve looks up a query and checks that every required parameter is supplied.
// Unknown names and missing parameters are tool selection errors for the task.
func (c *Catalog) Resolve(name string, params map[string]any) (Query, map[string]any, error) {
	q, ok := c.queries[name]
	if !ok {
		return Query{}, nil, errx.NewKind(errx.KindToolSelection,
			fmt.Errorf("unknown query %q", name), "unresolvable named query")
	}
	out := make(map[string]any, len(q.Parameters))
	for _, p := range q.Parameters {
		v, ok := params[p.Name]
		if !ok || v == nil || v == "" {
			if p.Optional {
				out[p.Name] = nil
				continue
			}
			return Query{}, nil, errx.NewKind(errx.KindToolSelection,
				fmt.Errorf("query %q requires parameter %q", name, p.Name), "missing named query parameter")
		}
		out[p.Name] = v
	}
	return q, out, nil
}

// Describe renders the catalog for the tool selection prompt.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, name := range c.names {
		q := c.queries[name]
		fmt.Fprintf(&b, "- %s: %s", q.Name, q.Description)
		if len(q.Parameters) > 0 {
			params := make([]string, len(q.Parameters))
			for i, p := range q.Parameters {
				params[i] = p.Name
			}
			fmt.Fprintf(&b, " (parameters: %s)", strings.Join(params, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
