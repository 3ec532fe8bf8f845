package bimgraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reoring/bimgraph/i18n"
)

// PathRef is an immutable JSON Pointer (RFC 6901) locating a value inside a
// record or document. The zero value is the document root.
type PathRef struct {
	segs []string // unescaped reference tokens
}

// RootPath returns the pointer to the document root, rendered as "/".
func RootPath() PathRef { return PathRef{} }

// PathAt parses a rendered pointer. Empty tokens are dropped, so "/" and ""
// both denote the root.
func PathAt(pointer string) PathRef {
	var p PathRef
	for tok := range strings.SplitSeq(pointer, "/") {
		if tok != "" {
			p.segs = append(p.segs, tokenUnescaper.Replace(tok))
		}
	}
	return p
}

var (
	tokenEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	tokenUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

func (p PathRef) child(seg string) PathRef {
	segs := make([]string, len(p.segs)+1)
	copy(segs, p.segs)
	segs[len(p.segs)] = seg
	return PathRef{segs: segs}
}

// Field descends into an object member. An empty name leaves p unchanged.
func (p PathRef) Field(name string) PathRef {
	if name == "" {
		return p
	}
	return p.child(name)
}

// Index descends into a list element.
func (p PathRef) Index(i int) PathRef { return p.child(strconv.Itoa(i)) }

// Parent drops the last token. The root is its own parent.
func (p PathRef) Parent() PathRef {
	if len(p.segs) == 0 {
		return p
	}
	return PathRef{segs: p.segs[:len(p.segs)-1]}
}

// Depth is the number of tokens below the root.
func (p PathRef) Depth() int { return len(p.segs) }

// Pointer renders p with "~" and "/" escaped inside tokens.
func (p PathRef) Pointer() string {
	if len(p.segs) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range p.segs {
		b.WriteByte('/')
		b.WriteString(tokenEscaper.Replace(s))
	}
	return b.String()
}

func (p PathRef) String() string { return p.Pointer() }

// IssueAt creates an Issue at p whose message is looked up in the i18n
// catalogue for code. params feed both the message placeholders and
// Issue.Params.
func IssueAt(p PathRef, code string, params map[string]any) Issue {
	data := make(map[string]string, len(params))
	for k, v := range params {
		data[k] = fmt.Sprint(v)
	}
	return Issue{Path: p.Pointer(), Code: code, Message: i18n.T(code, data), Params: params, Offset: -1}
}

func singleIssue(code string, params map[string]any) Issues {
	return AppendIssues(nil, IssueAt(RootPath(), code, params))
}
