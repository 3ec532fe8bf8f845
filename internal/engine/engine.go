// Package engine decodes a JSON token stream into a generic tree
// (map[string]any, []any, string, json.Number, bool, nil) and enforces
// structural limits while doing so.
package engine

import (
	"encoding/json"
	"errors"
	"io"
)

// Kind classifies a Token.
type Kind int

// Token kinds. Keys are reported separately from string values.
const (
	KindBeginObject Kind = iota
	KindEndObject
	KindBeginArray
	KindEndArray
	KindKey
	KindString
	KindNumber
	KindBool
	KindNull
)

// Token is one lexical element of a JSON document. Only the field matching
// Kind is set. Offset approximates the input position.
type Token struct {
	Kind   Kind
	String string
	Number string
	Bool   bool
	Offset int64
}

// TokenSource yields tokens until io.EOF.
type TokenSource interface {
	NextToken() (Token, error)
	Location() int64
}

// ErrTrailingData is returned when a document is followed by another value.
var ErrTrailingData = errors.New("trailing data after document")

// DecodeDocument decodes exactly one value from src; anything after it is an
// error.
func DecodeDocument(src TokenSource) (any, error) {
	v, err := DecodeAny(src)
	if err != nil {
		return nil, err
	}
	switch _, err := src.NextToken(); {
	case err == nil:
		return nil, ErrTrailingData
	case err != io.EOF:
		return nil, err
	}
	return v, nil
}

// DecodeAny reads the next complete value from src. Numbers stay json.Number
// so integer ids survive without float rounding.
func DecodeAny(src TokenSource) (any, error) {
	first, err := src.NextToken()
	if err != nil {
		return nil, err
	}
	return tree{src}.build(first)
}

type tree struct{ src TokenSource }

func (t tree) build(tok Token) (any, error) {
	switch tok.Kind {
	case KindString:
		return tok.String, nil
	case KindNumber:
		return json.Number(tok.Number), nil
	case KindBool:
		return tok.Bool, nil
	case KindNull:
		return nil, nil
	case KindBeginObject:
		obj := map[string]any{}
		err := t.members(KindEndObject, func(key string, v any) { obj[key] = v })
		if err != nil {
			return nil, err
		}
		return obj, nil
	case KindBeginArray:
		list := []any{}
		err := t.members(KindEndArray, func(_ string, v any) { list = append(list, v) })
		if err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, io.ErrUnexpectedEOF
}

// members consumes container entries up to the closing token. For objects
// each value is preceded by a KindKey token.
func (t tree) members(end Kind, add func(key string, v any)) error {
	for {
		tok, err := t.next()
		if err != nil {
			return err
		}
		if tok.Kind == end {
			return nil
		}
		var key string
		if end == KindEndObject {
			if tok.Kind != KindKey {
				return io.ErrUnexpectedEOF
			}
			key = tok.String
			if tok, err = t.next(); err != nil {
				return err
			}
		}
		v, err := t.build(tok)
		if err != nil {
			return err
		}
		add(key, v)
	}
}

// next reads a token inside an open container, where EOF is premature.
func (t tree) next() (Token, error) {
	tok, err := t.src.NextToken()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return tok, err
}
