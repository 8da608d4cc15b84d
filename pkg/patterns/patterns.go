// Package patterns provides the bot signature list and the matcher that
// evaluates it against User-Agent strings.
//
// Signatures are regular expressions evaluated case-insensitively with a
// backtracking engine, so lookahead and lookbehind are available. Every
// evaluation is bounded by MatchTimeout.
package patterns

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
)

// MatchTimeout bounds the evaluation of a single signature against one input.
// A timed-out signature is treated as not matching.
const MatchTimeout = 50 * time.Millisecond

// ErrInvalidPattern is returned when a signature does not compile.
var ErrInvalidPattern = errors.New("invalid bot pattern")

// Matcher evaluates a fixed list of signatures. It is safe for concurrent use.
type Matcher struct {
	patterns []string
	compiled []*regexp2.Regexp
	combined *regexp2.Regexp
	logger   *zap.Logger
}

// Ensure Matcher implements the common.Classifier interface.
var _ common.Classifier = (*Matcher)(nil)

var (
	defaultMatcher     *Matcher
	defaultMatcherOnce sync.Once
)

// List returns a copy of the default signature list.
func List() []string {
	return slices.Clone(defaultList)
}

// Default returns the matcher for the default signature list.
// It is compiled once and shared.
func Default() *Matcher {
	defaultMatcherOnce.Do(func() {
		m, err := New(defaultList)
		if err != nil {
			panic(fmt.Sprintf("default bot patterns do not compile: %v", err))
		}
		defaultMatcher = m
	})
	return defaultMatcher
}

// New compiles a matcher from an explicit signature list.
// Duplicate sources are compiled once, keeping their first position.
func New(list []string) (*Matcher, error) {
	m := &Matcher{
		patterns: make([]string, 0, len(list)),
		compiled: make([]*regexp2.Regexp, 0, len(list)),
		logger:   zap.NewNop(),
	}
	seen := make(map[string]struct{}, len(list))
	for _, source := range list {
		if _, dup := seen[source]; dup {
			continue
		}
		seen[source] = struct{}{}

		re, err := compile(source)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, source)
		m.compiled = append(m.compiled, re)
	}

	if len(m.patterns) > 0 {
		parts := make([]string, len(m.patterns))
		for i, source := range m.patterns {
			parts[i] = "(?:" + source + ")"
		}
		combined, err := compile(strings.Join(parts, "|"))
		if err != nil {
			return nil, err
		}
		m.combined = combined
	}
	return m, nil
}

func compile(source string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(source, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, source, err)
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// WithLogger returns a matcher sharing m's compiled signatures that reports
// evaluation failures (match timeouts) to logger at debug level.
func (m *Matcher) WithLogger(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := *m
	out.logger = logger
	return &out
}

// Patterns returns the signatures the matcher was built from.
func (m *Matcher) Patterns() []string {
	return slices.Clone(m.patterns)
}

// IsBot reports whether userAgent matches any signature.
func (m *Matcher) IsBot(userAgent string) bool {
	if userAgent == "" || m.combined == nil {
		return false
	}
	ok, err := m.combined.MatchString(userAgent)
	if err != nil {
		m.logger.Debug("Bot pattern evaluation failed", zap.Error(err), zap.Int("input_length", len(userAgent)))
		return false
	}
	return ok
}

// Match returns the first matching signature, i.e. the first element of Matches.
func (m *Matcher) Match(userAgent string) (string, bool) {
	matches := m.Matches(userAgent)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// match is one signature hit inside the input.
type match struct {
	text   string
	index  int
	length int
	order  int
}

// Matches returns the text matched by every signature, ordered by position in
// userAgent. Ties go to the longer match, then to the earlier signature.
// Identical texts are reported once.
func (m *Matcher) Matches(userAgent string) []string {
	if userAgent == "" {
		return nil
	}

	var hits []match
	for i, re := range m.compiled {
		found, err := re.FindStringMatch(userAgent)
		if err != nil {
			m.logger.Debug("Bot pattern evaluation failed",
				zap.String("pattern", m.patterns[i]),
				zap.Error(err),
			)
			continue
		}
		if found == nil {
			continue
		}
		hits = append(hits, match{
			text:   found.String(),
			index:  found.Index,
			length: found.Length,
			order:  i,
		})
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].index != hits[j].index {
			return hits[i].index < hits[j].index
		}
		if hits[i].length != hits[j].length {
			return hits[i].length > hits[j].length
		}
		return hits[i].order < hits[j].order
	})

	out := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.text]; dup {
			continue
		}
		seen[h.text] = struct{}{}
		out = append(out, h.text)
	}
	return out
}

// Resolve expands an exclusion token into the default signatures it
// corresponds to: the signature with that exact source, plus every signature
// matching the token itself. An unknown token resolves to nothing.
func Resolve(token string) []string {
	if token == "" {
		return nil
	}
	d := Default()
	var out []string
	for i, source := range d.patterns {
		if strings.EqualFold(source, token) {
			out = append(out, source)
			continue
		}
		if ok, err := d.compiled[i].MatchString(token); err == nil && ok {
			out = append(out, source)
		}
	}
	return out
}

// Build composes a signature list from the defaults: additions are appended,
// then every signature resolved from the exclusions is removed.
// It returns the list and the exclusion tokens that resolved to nothing.
func Build(additions []common.Pattern, exclusions []string) (list []string, unresolved []string) {
	list = List()
	for _, p := range additions {
		list = append(list, p.Expr())
	}

	excluded := make(map[string]struct{})
	for _, token := range exclusions {
		resolved := Resolve(token)
		if len(resolved) == 0 {
			unresolved = append(unresolved, token)
			continue
		}
		for _, source := range resolved {
			excluded[source] = struct{}{}
		}
	}
	if len(excluded) == 0 {
		return list, unresolved
	}

	list = slices.DeleteFunc(list, func(source string) bool {
		_, ok := excluded[source]
		return ok
	})
	return list, unresolved
}

// DisplayName title-cases a matched signature for display ("googlebot" -> "Googlebot").
func DisplayName(match string) string {
	if match == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(strings.TrimSpace(match)))
}
