// Package search ranks user profiles against a free-text name query. The
// index is built once per request from the candidate profiles and is
// read-only afterwards, so it is safe for concurrent use.
//
// Names are case-folded and NFKC-normalized, then split into word tokens.
// A query token matches a name token it prefixes ("ali" matches "alice").
// Scoring is Jaccard similarity over the matched token sets:
// score = |Q ∩ N| / |Q ∪ N|.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
)

// Result is a ranked profile with its similarity score.
type Result struct {
	Profile domain.Profile
	Score   float64
}

// Index is the minimal interface implemented by profile indices.
type Index interface {
	TopK(query string, k int) []Result
}

type Option func(*config)

type config struct {
	minScore   float64
	exactMatch bool
}

func defaultConfig() config {
	return config{minScore: 0, exactMatch: false}
}

// WithMinScore drops results scoring below s. Values outside [0,1] are ignored.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// WithExactTokens disables prefix matching.
func WithExactTokens() Option {
	return func(c *config) { c.exactMatch = true }
}

type doc struct {
	profile domain.Profile
	name    string
	tokens  []string
}

type index struct {
	cfg  config
	docs []doc
}

// NewProfileIndex indexes profiles by first and last name. Profiles without
// any name token are skipped.
func NewProfileIndex(profiles []domain.Profile, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(profiles))
	for _, p := range profiles {
		name := strings.TrimSpace(p.FirstName + " " + p.LastName)
		toks := tokenize(name)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{profile: p, name: name, tokens: toks})
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching profiles. k <= 0 means all matches.
// Ties go to the shorter name, then to the lower id.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		doc      *doc
		score    float64
		lenRunes int
	}
	buf := make([]scored, 0, len(i.docs))
	for n := range i.docs {
		d := &i.docs[n]
		over := i.overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(len(qTokens)+len(d.tokens)-over)
		if score < i.cfg.minScore {
			continue
		}
		buf = append(buf, scored{doc: d, score: score, lenRunes: utf8.RuneCountInString(d.name)})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].doc.profile.ID < buf[b].doc.profile.ID
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Profile: buf[n].doc.profile, Score: buf[n].score}
	}
	return out
}

// overlap counts query tokens that match some distinct name token. Each name
// token is consumed at most once so the score stays within [0,1].
func (i *index) overlap(q, name []string) int {
	used := make([]bool, len(name))
	n := 0
	for _, qt := range q {
		for j, nt := range name {
			if used[j] {
				continue
			}
			if nt == qt || (!i.cfg.exactMatch && strings.HasPrefix(nt, qt)) {
				used[j] = true
				n++
				break
			}
		}
	}
	return n
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize returns the distinct folded word tokens of s in order.
func tokenize(s string) []string {
	// A Caser is stateful and must not be shared across goroutines.
	s = cases.Fold().String(norm.NFKC.String(s))
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
