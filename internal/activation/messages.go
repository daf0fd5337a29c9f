package activation

import "time"

// Spoken messages.
const (
	MsgCommandNotRecognized = "Command not recognized. Try saying: What is in front of me?"
	MsgCommandNotHeard      = "I couldn't hear your command. Please try again."
	MsgAnalysisFailed       = "There was an error analyzing the scene."
	MsgCameraUnavailable    = "Camera permission denied or not available."
	MsgMicrophoneDenied     = "Microphone permission denied or not available."
	MsgUnsupported          = "Speech recognition is not supported on this device."
)

// Status strings reported to observers.
const (
	StatusIdle              = "idle"
	StatusInitializing      = "initializing..."
	StatusCameraDenied      = "camera permission denied or not available"
	StatusMicrophoneDenied  = "microphone permission denied or not available"
	StatusUnsupported       = "speech recognition not supported"
	StatusLoadingModel      = "loading model..."
	StatusModelReady        = "model loaded. Ready."
	StatusListening         = "listening for wake phrase..."
	StatusStoppedListening  = "stopped listening"
	StatusWakeHeard         = "wake phrase heard"
	StatusListeningCommand  = "listening for command..."
	StatusCommandError      = "error capturing command"
	StatusNotRecognized     = "command not recognized"
	StatusCapturing         = "capturing image..."
	StatusCapturingFallback = "capturing image (fallback)..."
	StatusProcessing        = "processing image..."
	StatusNoObjects         = "no objects detected"
	StatusDone              = "done"
	StatusAnalysisError     = "error during analysis"
)

// Haptic patterns, alternating vibrate and pause durations.
var (
	PatternWake       = []time.Duration{40 * time.Millisecond}
	PatternProcessing = []time.Duration{60 * time.Millisecond}
	PatternDone       = []time.Duration{30 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
)
