package bimgraph

// Severity expresses how a document decoder reacts to duplicate JSON keys.
// The zero value rejects them.
type Severity int

const (
	Error  Severity = iota // Reject the document.
	Warn                   // Report through DecodeOpt.IssueSink and keep the last value.
	Ignore                 // Keep the last value silently.
)

// Strictness configures enforcement while tokenizing documents.
type Strictness struct {
	OnDuplicateKey Severity
}

// DecodeOpt bundles document decoding options. When several are passed the
// last one wins.
type DecodeOpt struct {
	Strictness Strictness
	MaxDepth   int   // 0 = unlimited
	MaxBytes   int64 // 0 = unlimited
	// IssueSink receives non-fatal issues (duplicate keys under Warn).
	IssueSink func(Issue)
}

func lastOpt[T any](opts []T) T {
	var opt T
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	return opt
}
