package corpus

import (
	"errors"
	"fmt"
)

// Kind classifies index failures so the HTTP boundary can map them to a
// status code in one place.
type Kind int

const (
	// KindInternal covers filesystem and other unexpected failures.
	KindInternal Kind = iota
	// KindInvalidClassification is a list type token that is not ALL,
	// RECORDED or UNRECORDED.
	KindInvalidClassification
	// KindOutOfRange is a page index past the last page.
	KindOutOfRange
	// KindUnknownKey is a key with no text file, or no recorded take when
	// removing one.
	KindUnknownKey
	// KindNoAudio is a known key whose optional audio file is absent.
	KindNoAudio
	// KindInvalidAudio is audio data that cannot be decoded.
	KindInvalidAudio
)

var kindNames = map[Kind]string{
	KindInternal:              "internal",
	KindInvalidClassification: "invalid_classification",
	KindOutOfRange:            "out_of_range",
	KindUnknownKey:            "unknown_key",
	KindNoAudio:               "no_audio",
	KindInvalidAudio:          "invalid_audio",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the typed failure returned by the index.
type Error struct {
	Kind Kind
	Key  string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Key)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, corpus.ErrUnknownKey).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Key == "" && t.Msg == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidClassification = &Error{Kind: KindInvalidClassification}
	ErrOutOfRange            = &Error{Kind: KindOutOfRange}
	ErrUnknownKey            = &Error{Kind: KindUnknownKey}
	ErrNoAudio               = &Error{Kind: KindNoAudio}
	ErrInvalidAudio          = &Error{Kind: KindInvalidAudio}
)

// KindOf returns the Kind carried by err, or KindInternal when err is not
// an index error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

func newError(kind Kind, key, msg string) *Error {
	return &Error{Kind: kind, Key: key, Msg: msg}
}

func wrapError(kind Kind, key, msg string, err error) *Error {
	return &Error{Kind: kind, Key: key, Msg: msg, Err: err}
}
