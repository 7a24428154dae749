// Package examples holds categorized question/Cypher pairs used as few-shot
// context for statement generation.
package examples

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var defaultExamples []byte

// DefaultK is the number of examples retrieved when the caller passes k <= 0.
const DefaultK = 3

type Example struct {
	Category string `yaml:"-"`
	Question string `yaml:"question"`
	Cypher   string `yaml:"cypher"`
}

type file struct {
	Version    int                  `yaml:"version"`
	Categories map[string][]Example `yaml:"categories"`
}

// Library is immutable after loading and safe for concurrent reads.
type Library struct {
	examples []Example
	tokens   []map[string]struct{}
}

// Default returns the embedded library.
func Default() (*Library, error) {
	return Load(bytes.NewReader(defaultExamples))
}

func LoadFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open examples: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Library, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode examples: %w", err)
	}

	categories := make([]string, 0, len(doc.Categories))
	for c := range doc.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	lib := &Library{}
	for _, c := range categories {
		for i, ex := range doc.Categories[c] {
			ex.Category = c
			ex.Question = strings.TrimSpace(ex.Question)
			ex.Cypher = strings.TrimSpace(ex.Cypher)
			if ex.Question == "" || ex.Cypher == "" {
				return nil, fmt.Errorf("examples %s[%d]: question and cypher are required", c, i)
			}
			lib.examples = append(lib.examples, ex)
			lib.tokens = append(lib.tokens, tokenSet(ex.Question))
		}
	}
	return lib, nil
}

func (l *Library) Len() int {
	return len(l.examples)
}

// Retrieve returns the k examples whose questions share the most tokens with
// the question. Ties keep library order; examples with no overlap are dropped.
func (l *Library) Retrieve(question string, k int) []Example {
	if k <= 0 {
		k = DefaultK
	}
	q := tokenSet(question)
	if len(q) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, toks := range l.tokens {
		if s := jaccard(q, toks); s > 0 {
			hits = append(hits, scored{i, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]Example, len(hits))
	for i, h := range hits {
		out[i] = l.examples[h.idx]
	}
	return out
}

// Format renders examples as prompt text.
func Format(exs []Example) string {
	var b strings.Builder
	for _, ex := range exs {
		fmt.Fprintf(&b, "Question: %s\nCypher: %s\n\n", ex.Question, ex.Cypher)
	}
	return strings.TrimRight(b.String(), "\n")
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "is": {}, "are": {}, "what": {}, "which": {},
	"who": {}, "how": {}, "do": {}, "does": {}, "did": {}, "in": {}, "to": {}, "for": {},
	"and": {}, "or": {}, "all": {}, "their": {}, "there": {}, "me": {}, "show": {}, "list": {},
}

// tokenSet splits words on non-letter/digit runes and lowercases them. Han
// characters have no word boundaries, so each adjacent pair becomes a token.
func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	var word []rune
	var han []rune
	flushWord := func() {
		if len(word) > 0 {
			w := strings.ToLower(string(word))
			if _, stop := stopwords[w]; !stop {
				out[w] = struct{}{}
			}
			word = word[:0]
		}
	}
	flushHan := func() {
		switch {
		case len(han) == 1:
			out[string(han)] = struct{}{}
		case len(han) > 1:
			for i := 0; i+1 < len(han); i++ {
				out[string(han[i:i+2])] = struct{}{}
			}
		}
		han = han[:0]
	}
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
