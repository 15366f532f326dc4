package conversation

// Phase represents the loop's current step
type Phase int32

const (
	// Idle means conversational mode is off
	Idle Phase = iota
	// PreparingTurn means playback is being muted, stopped and confirmed silent
	PreparingTurn
	// AwaitingVoice means the microphone is open and waiting for voice onset
	AwaitingVoice
	// Recording means the user is speaking
	Recording
	// Transcribing means the recording is at the speech-to-text service
	Transcribing
	// Filtering means assistant echo is being removed from the transcript
	Filtering
	// Dispatching means the assistant is producing a reply
	Dispatching
	// Speaking means the reply is being played
	Speaking
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PreparingTurn:
		return "preparing-turn"
	case AwaitingVoice:
		return "awaiting-voice"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Filtering:
		return "filtering"
	case Dispatching:
		return "dispatching"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MicrophoneOpen reports whether the capture device is held in this phase.
func (p Phase) MicrophoneOpen() bool {
	return p == AwaitingVoice || p == Recording
}

// Turn outcomes recorded in metrics.
const (
	OutcomeCompleted          = "completed"
	OutcomeNoVoice            = "no-voice"
	OutcomeTooShort           = "too-short"
	OutcomeEchoOnly           = "echo-only"
	OutcomeDeviceError        = "device-error"
	OutcomeCaptureError       = "capture-error"
	OutcomeTranscriptionError = "transcription-error"
	OutcomeAssistantError     = "assistant-error"
	OutcomePlaybackError      = "playback-error"
	OutcomeCancelled          = "cancelled"
)

// Turn is the transcript of one conversation turn.
type Turn struct {
	Raw      string
	Filtered string
	Dropped  int
	Rejected bool
}
