// Package signature implements the supervisor pattern library: regex
// matching against live process context, JSON persistence across
// built-in/learned/custom/disabled sources, pattern learning from
// operator decisions, and lifecycle transitions.
package signature

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/octoreflex/proctriage/internal/model"
)

// compiledSignature pairs a SupervisorSignature with its pre-compiled
// regexes so Match never recompiles on the hot path.
type compiledSignature struct {
	sig        model.SupervisorSignature
	comm       []*regexp.Regexp
	cmd        []*regexp.Regexp
	env        []*regexp.Regexp
	cwd        []*regexp.Regexp
	socket     []*regexp.Regexp
	parentComm []*regexp.Regexp
}

func compile(sig model.SupervisorSignature) (compiledSignature, error) {
	c := compiledSignature{sig: sig}
	var err error
	if c.comm, err = compileAll(sig.Patterns.Comm); err != nil {
		return c, fmt.Errorf("signature %q: comm patterns: %w", sig.Name, err)
	}
	if c.cmd, err = compileAll(sig.Patterns.Cmd); err != nil {
		return c, fmt.Errorf("signature %q: cmd patterns: %w", sig.Name, err)
	}
	if c.env, err = compileAll(sig.Patterns.Env); err != nil {
		return c, fmt.Errorf("signature %q: env patterns: %w", sig.Name, err)
	}
	if c.cwd, err = compileAll(sig.Patterns.Cwd); err != nil {
		return c, fmt.Errorf("signature %q: cwd patterns: %w", sig.Name, err)
	}
	if c.socket, err = compileAll(sig.Patterns.Socket); err != nil {
		return c, fmt.Errorf("signature %q: socket patterns: %w", sig.Name, err)
	}
	if c.parentComm, err = compileAll(sig.Patterns.ParentComm); err != nil {
		return c, fmt.Errorf("signature %q: parent_comm patterns: %w", sig.Name, err)
	}
	return c, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// matches reports whether ctx satisfies every non-empty pattern group.
// An empty group imposes no constraint and is skipped.
func (c compiledSignature) matches(ctx model.ProcessMatchContext) bool {
	if !anyMatchesString(c.comm, ctx.Comm) {
		return false
	}
	if !anyMatchesString(c.cmd, ctx.Cmdline) {
		return false
	}
	if !anyMatchesString(c.cwd, ctx.Cwd) {
		return false
	}
	if !anyMatchesString(c.parentComm, ctx.ParentComm) {
		return false
	}
	if !anyMatchesAny(c.env, ctx.EnvVars) {
		return false
	}
	if !anyMatchesAny(c.socket, ctx.SocketPaths) {
		return false
	}
	return true
}

func anyMatchesString(res []*regexp.Regexp, s string) bool {
	if len(res) == 0 {
		return true
	}
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func anyMatchesAny(res []*regexp.Regexp, values []string) bool {
	if len(res) == 0 {
		return true
	}
	for _, re := range res {
		for _, v := range values {
			if re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

// Match is one signature matching a process, carrying the score used
// to rank multiple matches.
type Match struct {
	Signature model.SupervisorSignature
	Score     float64
}

// Matcher holds a priority-ordered set of compiled signatures.
type Matcher struct {
	compiled []compiledSignature
}

// NewMatcher compiles sigs and sorts them ascending by priority, the
// order patterns are checked in.
func NewMatcher(sigs []model.SupervisorSignature) (*Matcher, error) {
	compiled := make([]compiledSignature, 0, len(sigs))
	for _, s := range sigs {
		c, err := compile(s)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].sig.Priority < compiled[j].sig.Priority
	})
	return &Matcher{compiled: compiled}, nil
}

// MatchAll returns every signature matching ctx, in ascending-priority
// order.
func (m *Matcher) MatchAll(ctx model.ProcessMatchContext) []Match {
	var out []Match
	for _, c := range m.compiled {
		if c.matches(ctx) {
			out = append(out, Match{Signature: c.sig, Score: c.sig.ConfidenceWeight})
		}
	}
	return out
}

// Best returns the highest-scoring match, or false if nothing matched.
// Ties keep the first (lowest-priority, i.e. highest-precedence) match
// encountered.
func (m *Matcher) Best(ctx model.ProcessMatchContext) (Match, bool) {
	matches := m.MatchAll(ctx)
	if len(matches) == 0 {
		return Match{}, false
	}
	best := matches[0]
	for _, cand := range matches[1:] {
		if cand.Score > best.Score {
			best = cand
		}
	}
	return best, true
}
