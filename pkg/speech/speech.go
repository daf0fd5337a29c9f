// Package speech defines the speech-recognition contract used by the
// activation loop: a continuous recognition stream with callbacks, and a
// one-shot listen built on top of it.
package speech

import (
	"errors"
	"strings"
)

// Sentinel errors reported by recognizers.
var (
	// ErrUnsupported means recognition is not available on this host.
	ErrUnsupported = errors.New("speech: recognition unsupported")

	// ErrPermission means the input device cannot be used.
	ErrPermission = errors.New("speech: microphone unavailable")

	// ErrAlreadyStarted is returned by Start on a running stream.
	ErrAlreadyStarted = errors.New("speech: stream already started")
)

// Options configures a recognition stream.
type Options struct {
	Continuous      bool
	Locale          string // BCP 47 tag, e.g. "en-IN"
	MaxAlternatives int    // always 1
	InterimResults  bool   // always false
}

// DefaultOptions returns continuous, final-results-only options.
func DefaultOptions(locale string) Options {
	return Options{
		Continuous:      true,
		Locale:          locale,
		MaxAlternatives: 1,
	}
}

// Handlers receives stream events. Nil fields are skipped.
type Handlers struct {
	OnStart  func()
	OnResult func(text string)
	OnError  func(err error)
	OnEnd    func()
}

// Stream is a recognition stream. Events are delivered to the handlers most
// recently passed to Attach; after Detach no further events are delivered.
type Stream interface {
	Attach(h Handlers)
	Detach()
	Start(opts Options) error
	Stop() error
}

// Recognizer creates streams on a recognition backend.
type Recognizer interface {
	// Available reports ErrUnsupported or ErrPermission when streams cannot work.
	Available() error
	NewStream() (Stream, error)
}

// Releaser is implemented by recognizers that hold a device or a helper
// process between streams. Release frees it; the next stream acquires it
// again.
type Releaser interface {
	Release() error
}

// Normalize lower-cases and trims a transcript.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
