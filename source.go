package bimgraph

import (
	"io"
	"sync/atomic"

	eng "github.com/reoring/bimgraph/internal/engine"
	"github.com/reoring/bimgraph/internal/jsontok"
)

// TokenKind classifies a Token.
type TokenKind = eng.Kind

const (
	TokenBeginObject = eng.KindBeginObject
	TokenEndObject   = eng.KindEndObject
	TokenBeginArray  = eng.KindBeginArray
	TokenEndArray    = eng.KindEndArray
	TokenKey         = eng.KindKey
	TokenString      = eng.KindString
	TokenNumber      = eng.KindNumber
	TokenBool        = eng.KindBool
	TokenNull        = eng.KindNull
)

// Token is one lexical element of a JSON document. Numbers are kept as text
// and coerced to the declared attribute kind later.
type Token = eng.Token

// Source is a stream of JSON tokens ending in io.EOF. Location reports a byte
// offset, or -1 when unknown.
type Source interface {
	NextToken() (Token, error)
	Location() int64
}

// JSONDriver turns raw JSON into a Source. The default driver is built on
// goccy/go-json; SetJSONDriver swaps it process-wide.
type JSONDriver interface {
	NewReader(r io.Reader) Source
	NewBytes(b []byte) Source
	Name() string
}

type driverBox struct{ JSONDriver }

var jsonDriver atomic.Pointer[driverBox]

func init() { UseDefaultJSONDriver() }

// SetJSONDriver replaces the driver used by every decoder. nil is ignored.
func SetJSONDriver(d JSONDriver) {
	if d != nil {
		jsonDriver.Store(&driverBox{d})
	}
}

// UseDefaultJSONDriver restores the go-json driver.
func UseDefaultJSONDriver() { jsonDriver.Store(&driverBox{goJSONDriver{}}) }

// CurrentJSONDriver returns the driver used by the document decoders.
func CurrentJSONDriver() JSONDriver { return jsonDriver.Load().JSONDriver }

type goJSONDriver struct{}

func (goJSONDriver) NewReader(r io.Reader) Source { return jsontok.NewReader(r) }
func (goJSONDriver) NewBytes(b []byte) Source     { return jsontok.NewBytes(b) }
func (goJSONDriver) Name() string                 { return "go-json" }

// JSONReader wraps an io.Reader as a Source using the current driver.
func JSONReader(r io.Reader) Source { return CurrentJSONDriver().NewReader(r) }

// JSONBytes wraps a byte slice as a Source using the current driver.
func JSONBytes(b []byte) Source { return CurrentJSONDriver().NewBytes(b) }

func toEngineDup(s Severity) eng.DuplicateStrictness {
	switch s {
	case Ignore:
		return eng.DupIgnore
	case Warn:
		return eng.DupWarn
	default:
		return eng.DupError
	}
}
