package bimgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reoring/bimgraph/mesh"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeInvalidType      = "invalid_type"
	CodeRequired         = "required"
	CodeUnknownAttribute = "unknown_attribute"
	CodeUnknownType      = "unknown_type"
	CodeInvalidEnum      = "invalid_enum"
	CodeInverseAssigned  = "inverse_assigned"
	// Document decoding
	CodeDuplicateKey      = "duplicate_key"
	CodeDuplicateToken    = "duplicate_token"
	CodeUnresolvedRef     = "unresolved_ref"
	CodeMalformedDocument = "malformed_document"
	CodeParseError        = "parse_error"
	CodeTruncated         = "truncated"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrSchemaViolation   = errors.New("schema violation")
	ErrTypeConformance   = errors.New("type conformance")
	ErrConfigConflict    = errors.New("config conflict")
	ErrMalformedDocument = errors.New("malformed document")
	ErrCyclicHierarchy   = errors.New("cyclic hierarchy")
	ErrNotFound          = errors.New("not found")
	ErrAmbiguousLookup   = errors.New("ambiguous lookup")
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrFrozen            = errors.New("graph is frozen")
	ErrInvalidPayload    = mesh.ErrInvalidPayload
)

// Issue represents a single validation or decoding entry.
type Issue struct {
	Path    string // JSON Pointer (for example: /attributes/Representation/0).
	Code    string // One of the codes listed above.
	Message string
	Hint    string // Optional: remediation hints.
	Cause   error  // Optional: underlying error.
	Offset  int64  // Byte offset in the input document (-1 when unknown).
	// Params carries structured parameters (e.g., {"expected":"integer",
	// "got":"string"}) for i18n and observability.
	Params map[string]any
}

// Issues is a collection of validation errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := min(n, maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. required at /GlobalId: required attribute GlobalId is missing
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
		if it.Message != "" {
			b.WriteString(": ")
			b.WriteString(it.Message)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Is maps the issue set onto the sentinel taxonomy: document-structure codes
// match ErrMalformedDocument, everything else ErrSchemaViolation.
func (iss Issues) Is(target error) bool {
	switch target {
	case ErrMalformedDocument:
		return iss.malformed()
	case ErrSchemaViolation:
		return len(iss) > 0 && !iss.malformed()
	}
	return false
}

func (iss Issues) malformed() bool {
	for _, it := range iss {
		switch it.Code {
		case CodeDuplicateKey, CodeDuplicateToken, CodeUnresolvedRef, CodeMalformedDocument, CodeParseError, CodeTruncated:
			return true
		}
	}
	return false
}

// Codes returns the issue codes in order.
func (iss Issues) Codes() []string {
	out := make([]string, len(iss))
	for i, it := range iss {
		out[i] = it.Code
	}
	return out
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// NotFoundError is returned when a lookup (type, attribute, global id or
// identity) has no match.
type NotFoundError struct {
	Kind string // "entity", "attribute", "type"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// Is reports whether the target error is ErrNotFound.
func (e *NotFoundError) Is(err error) bool { return err == ErrNotFound }

// IsNotFound returns a boolean indicating whether the error is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func notFound(kind, key string) error { return &NotFoundError{Kind: kind, Key: key} }

// AmbiguousLookupError is returned when a lookup key matched more than one
// loaded record.
type AmbiguousLookupError struct {
	Key   string
	Count int
}

func (e *AmbiguousLookupError) Error() string {
	return fmt.Sprintf("lookup %q is ambiguous: %d records share it", e.Key, e.Count)
}

// Is reports whether the target error is ErrAmbiguousLookup.
func (e *AmbiguousLookupError) Is(err error) bool { return err == ErrAmbiguousLookup }

// CyclicHierarchyError is returned when a containment walk revisits an entity.
type CyclicHierarchyError struct {
	Entity string // label of the repeated entity
	Depth  int
}

func (e *CyclicHierarchyError) Error() string {
	return fmt.Sprintf("cyclic hierarchy: %s reached again at depth %d", e.Entity, e.Depth)
}

// Is reports whether the target error is ErrCyclicHierarchy.
func (e *CyclicHierarchyError) Is(err error) bool { return err == ErrCyclicHierarchy }

// TypeConformanceError is returned when a cast copy does not satisfy its
// target type. Issues holds the validator findings.
type TypeConformanceError struct {
	From, To string
	Issues   Issues
}

func (e *TypeConformanceError) Error() string {
	return fmt.Sprintf("cannot cast %s to %s: %v", e.From, e.To, e.Issues)
}

// Is reports whether the target error is ErrTypeConformance.
func (e *TypeConformanceError) Is(err error) bool { return err == ErrTypeConformance }
