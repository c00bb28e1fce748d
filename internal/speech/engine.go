// Package speech drives one-shot speech recognition sessions: one utterance
// per activation, stopped automatically on the first final result.
package speech

// Engine is a native speech recognition engine. Begin asks the engine to
// start listening; everything after that is reported asynchronously
// through the Events it was given. Abort tears the native session down and
// may still produce trailing events, which the controller discards.
type Engine interface {
	Supported() bool
	Begin(events Events) error
	Abort()
}

// Events is the callback surface an Engine reports to. Implementations
// must tolerate calls from any goroutine, in any order, after Abort.
type Events interface {
	OnStart()
	// OnResult carries the first alternative of a result. Interim results
	// have final == false.
	OnResult(transcript string, final bool)
	OnEnd()
	// OnError carries the raw engine code: not-allowed, no-speech,
	// network, aborted or anything else.
	OnError(code string)
}

// Engine error codes.
const (
	CodeNotAllowed = "not-allowed"
	CodeNoSpeech   = "no-speech"
	CodeNetwork    = "network"
	CodeAborted    = "aborted"
)
