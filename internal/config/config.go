// Package config assembles the daemon configuration from defaults, an
// optional .env file and VISTA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"vista/internal/activation"
	"vista/internal/camera"
	"vista/internal/speaker"
	"vista/pkg/detect/yolo"
)

// Defaults for values owned by this package.
const (
	DefaultLogLevel     = "info"
	DefaultBackend      = "mic"
	DefaultWhisperModel = "third_party/whisper.cpp/models/ggml-base.en.bin"
	DefaultSocketPath   = "/tmp/vista.sock"
	DefaultTTS          = "espeak"
	DefaultShard        = "VISTA"
	DefaultDuckFactor   = 0.3
)

// Recognizer backend names.
const (
	BackendMic     = "mic"
	BackendProcess = "process"
	BackendReplay  = "replay"
)

// TTS backend names.
const (
	TTSEspeak  = "espeak"
	TTSConsole = "console"
)

// Config is the complete daemon configuration.
type Config struct {
	LogLevel string

	Activation activation.Config
	Camera     camera.Config
	Detector   yolo.Config

	// CountPeople counts person boxes instead of naming one person.
	CountPeople bool

	SpeechPolicy speaker.Policy
	Cooldown     time.Duration
	TTS          string
	Duck         bool
	DuckFactor   float64

	Backend        string
	WhisperModel   string
	RecognizerCmd  string
	RecognizerArgs []string
	ReplayDir      string

	CuePath string
	Ticks   bool

	SocketPath string
	BusURL     string
	Shard      string

	Proxy       string
	NLU         bool
	OpenAIKey   string
	OpenAIModel string
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		LogLevel:     DefaultLogLevel,
		Activation:   activation.DefaultConfig(),
		Camera:       camera.DefaultConfig(),
		Detector:     yolo.DefaultConfig(),
		SpeechPolicy: speaker.PolicyInterrupt,
		Cooldown:     speaker.DefaultCooldown,
		TTS:          DefaultTTS,
		DuckFactor:   DefaultDuckFactor,
		Backend:      DefaultBackend,
		WhisperModel: DefaultWhisperModel,
		SocketPath:   DefaultSocketPath,
		Shard:        DefaultShard,
	}
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if err := c.Activation.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Backend {
	case BackendMic:
		if c.WhisperModel == "" {
			errs = append(errs, errors.New("config: mic backend needs a whisper model"))
		}
	case BackendProcess:
		if strings.TrimSpace(c.RecognizerCmd) == "" {
			errs = append(errs, errors.New("config: process backend needs a recognizer command"))
		}
	case BackendReplay:
		if c.ReplayDir == "" {
			errs = append(errs, errors.New("config: replay backend needs a directory"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown recognizer backend %q", c.Backend))
	}
	switch c.TTS {
	case TTSEspeak, TTSConsole:
	default:
		errs = append(errs, fmt.Errorf("config: unknown tts backend %q", c.TTS))
	}
	if c.Camera.Device == "" {
		errs = append(errs, errors.New("config: camera device is empty"))
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("config: jpeg quality must be in [1,100], got %d", c.Camera.JPEGQuality))
	}
	if c.Detector.ConfidenceThresh <= 0 || c.Detector.ConfidenceThresh >= 1 {
		errs = append(errs, fmt.Errorf("config: confidence must be in (0,1), got %v", c.Detector.ConfidenceThresh))
	}
	if c.Detector.NMSThresh <= 0 || c.Detector.NMSThresh >= 1 {
		errs = append(errs, fmt.Errorf("config: nms threshold must be in (0,1), got %v", c.Detector.NMSThresh))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("config: cooldown must not be negative, got %s", c.Cooldown))
	}
	if c.Duck && (c.DuckFactor < 0 || c.DuckFactor > 1) {
		errs = append(errs, fmt.Errorf("config: duck factor must be in [0,1], got %v", c.DuckFactor))
	}
	if c.NLU && c.OpenAIKey == "" {
		errs = append(errs, errors.New("config: nlu enabled but OPENAI_API_KEY not set"))
	}
	if c.SocketPath == "" {
		errs = append(errs, errors.New("config: control socket path is empty"))
	}
	return errors.Join(errs...)
}
