package bimgraph

import (
	"errors"
	"io"

	eng "github.com/reoring/bimgraph/internal/engine"
)

// DecodeTree consumes one JSON document from src and returns the generic tree
// (map[string]any, []any, string, json.Number, bool, nil). Duplicate keys,
// depth and size are enforced according to opts.
func DecodeTree(src Source, opts ...DecodeOpt) (any, error) {
	opt := lastOpt(opts)
	var sink func(eng.SimpleIssue)
	if opt.IssueSink != nil {
		sink = func(si eng.SimpleIssue) {
			opt.IssueSink(Issue{Path: si.Path, Code: si.Code, Message: si.Message, Offset: si.Offset})
		}
	}
	enforced := eng.WrapWithEnforcement(src, eng.EnforceOptions{
		OnDuplicate: toEngineDup(opt.Strictness.OnDuplicateKey),
		MaxDepth:    opt.MaxDepth,
		MaxBytes:    opt.MaxBytes,
		IssueSink:   sink,
	})
	v, err := eng.DecodeDocument(enforced)
	if err != nil {
		return nil, toIssues(err)
	}
	return v, nil
}

func decodeBytes(data []byte, opt DecodeOpt) (any, error) {
	if opt.MaxBytes > 0 && int64(len(data)) > opt.MaxBytes {
		return nil, singleIssue(CodeTruncated, nil)
	}
	return DecodeTree(JSONBytes(data), opt)
}

func decodeReader(r io.Reader, opt DecodeOpt) (any, error) {
	if opt.MaxBytes > 0 {
		r = io.LimitReader(r, opt.MaxBytes+1)
	}
	return DecodeTree(JSONReader(r), opt)
}

func toIssues(err error) Issues {
	if err == nil {
		return nil
	}
	if ii, ok := AsIssues(err); ok {
		return ii
	}
	var ie eng.IssueError
	if errors.As(err, &ie) {
		return AppendIssues(nil, Issue{Code: ie.Code, Path: ie.Path, Message: ie.Message, Offset: ie.Offset})
	}
	iss := singleIssue(CodeParseError, nil)
	iss[0].Message += ": " + err.Error()
	iss[0].Cause = err
	return iss
}
