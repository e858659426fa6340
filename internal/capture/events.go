package capture

import (
	"time"

	"github.com/nxtwrld/medscribe/internal/capture/stall"
)

// State is the lifecycle state of a capture Session.
type State int

const (
	// StateReady means the session is constructed but not started.
	StateReady State = iota

	// StateListening means audio is being captured and the VAD is waiting
	// for speech.
	StateListening

	// StateSpeaking means an utterance is currently being accumulated.
	StateSpeaking

	// StateStopping means Stop was called and buffers are being flushed.
	StateStopping

	// StateStopped means the session has ended and the source is released.
	StateStopped

	// StateError means the session hit an unrecoverable acquisition failure.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventType enumerates the observability events a Session emits.
type EventType int

const (
	// EventSpeechStart fires when the VAD opens an utterance.
	EventSpeechStart EventType = iota

	// EventSpeechEnd fires when an utterance closes naturally.
	EventSpeechEnd

	// EventSpeechEndTimeout fires when a stuck utterance was force-closed.
	// This is a non-fatal, self-correcting condition.
	EventSpeechEndTimeout

	// EventStateChange fires on every session state transition.
	EventStateChange

	// EventRecordingStarted fires once capture has begun.
	EventRecordingStarted

	// EventRecordingStopped fires once capture has ended and buffers are
	// flushed.
	EventRecordingStopped

	// EventError fires on unrecoverable failures (device acquisition).
	EventError
)

// String returns the wire/log name of the event type.
func (t EventType) String() string {
	switch t {
	case EventSpeechStart:
		return "speech-start"
	case EventSpeechEnd:
		return "speech-end"
	case EventSpeechEndTimeout:
		return "speech-end-timeout"
	case EventStateChange:
		return "state-change"
	case EventRecordingStarted:
		return "recording-started"
	case EventRecordingStopped:
		return "recording-stopped"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single observability notification from a Session.
type Event struct {
	// Type classifies the event.
	Type EventType

	// Time is when the event occurred (session clock).
	Time time.Time

	// From and To carry the transition for EventStateChange.
	From, To State

	// Reason identifies the stuck heuristic for EventSpeechEndTimeout.
	Reason stall.Reason

	// Err carries the failure for EventError.
	Err error
}
