package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// DuplicateStrictness selects what happens when an object repeats a key.
type DuplicateStrictness int

const (
	DupIgnore DuplicateStrictness = iota
	DupWarn
	DupError
)

// SimpleIssue is a problem found while reading tokens. Path is a JSON Pointer.
type SimpleIssue struct {
	Code    string
	Path    string
	Message string
	Offset  int64
}

// IssueError aborts decoding with a SimpleIssue.
type IssueError struct{ SimpleIssue }

func (e IssueError) Error() string { return e.Message }

// EnforceOptions bounds what a TokenSource may deliver. Zero values disable a
// check.
type EnforceOptions struct {
	OnDuplicate DuplicateStrictness
	MaxDepth    int
	MaxBytes    int64
	// IssueSink receives duplicate keys under DupWarn.
	IssueSink func(SimpleIssue)
}

// Enabled reports whether any check is switched on.
func (o EnforceOptions) Enabled() bool {
	return o.OnDuplicate != DupIgnore || o.MaxDepth > 0 || o.MaxBytes > 0
}

// WrapWithEnforcement returns inner unchanged when opt enables nothing.
func WrapWithEnforcement(inner TokenSource, opt EnforceOptions) TokenSource {
	if !opt.Enabled() {
		return inner
	}
	return &guard{inner: inner, opt: opt}
}

// scope is one open container. seg is the token naming it inside its parent;
// member is the key or index of the entry currently being read.
type scope struct {
	seg    string
	array  bool
	seen   map[string]struct{}
	member string
	count  int
}

type guard struct {
	inner  TokenSource
	opt    EnforceOptions
	scopes []scope
}

func (g *guard) Location() int64 { return g.inner.Location() }

// enter positions the innermost scope on its next member and returns the
// segment naming it. Keys name object members before their values arrive.
func (g *guard) enter() string {
	if len(g.scopes) == 0 {
		return ""
	}
	top := &g.scopes[len(g.scopes)-1]
	if top.array {
		top.member = strconv.Itoa(top.count)
		top.count++
	}
	return top.member
}

// pointer renders the path of the open scopes followed by extra.
func (g *guard) pointer(extra ...string) string {
	var b strings.Builder
	for i, s := range g.scopes {
		if i > 0 {
			b.WriteByte('/')
			b.WriteString(escapeToken(s.seg))
		}
	}
	for _, s := range extra {
		b.WriteByte('/')
		b.WriteString(escapeToken(s))
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

func (g *guard) issue(code, path, msg string) SimpleIssue {
	return SimpleIssue{Code: code, Path: path, Message: msg, Offset: g.Location()}
}

func (g *guard) NextToken() (Token, error) {
	tok, err := g.inner.NextToken()
	if err != nil {
		return Token{}, err
	}
	switch tok.Kind {
	case KindKey:
		top := &g.scopes[len(g.scopes)-1]
		if _, dup := top.seen[tok.String]; dup && g.opt.OnDuplicate != DupIgnore {
			si := g.issue("duplicate_key", g.pointer(tok.String), fmt.Sprintf("key '%s' duplicated", tok.String))
			if g.opt.OnDuplicate == DupError {
				return Token{}, IssueError{si}
			}
			if g.opt.IssueSink != nil {
				g.opt.IssueSink(si)
			}
		}
		top.seen[tok.String] = struct{}{}
		top.member = tok.String
	case KindBeginObject, KindBeginArray:
		s := scope{seg: g.enter(), array: tok.Kind == KindBeginArray}
		if !s.array {
			s.seen = map[string]struct{}{}
		}
		g.scopes = append(g.scopes, s)
		if g.opt.MaxDepth > 0 && len(g.scopes) > g.opt.MaxDepth {
			return Token{}, IssueError{g.issue("parse_error", g.pointer(), fmt.Sprintf("max depth %d exceeded", g.opt.MaxDepth))}
		}
	case KindEndObject, KindEndArray:
		if n := len(g.scopes); n > 0 {
			g.scopes = g.scopes[:n-1]
		}
	default:
		g.enter()
	}
	if g.opt.MaxBytes > 0 && g.Location() > g.opt.MaxBytes {
		return Token{}, IssueError{g.issue("truncated", g.pointer(), fmt.Sprintf("max bytes %d exceeded", g.opt.MaxBytes))}
	}
	return tok, nil
}

var tokenEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func escapeToken(s string) string { return tokenEscaper.Replace(s) }
