package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vista/internal/speaker"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := Loader{Lookup: mapLookup(nil)}.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Activation.WakePhrase != "hey india" {
		t.Errorf("WakePhrase = %q, want %q", cfg.Activation.WakePhrase, "hey india")
	}
	if cfg.Activation.CommandTimeout != 4500*time.Millisecond {
		t.Errorf("CommandTimeout = %s, want 4.5s", cfg.Activation.CommandTimeout)
	}
	if cfg.SpeechPolicy != speaker.PolicyInterrupt {
		t.Errorf("SpeechPolicy = %v, want interrupt", cfg.SpeechPolicy)
	}
	if cfg.Backend != BackendMic {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendMic)
	}
	if cfg.SocketPath != DefaultSocketPath {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, DefaultSocketPath)
	}
}

func TestLoaderEnvOverride(t *testing.T) {
	env := map[string]string{
		"VISTA_WAKE_PHRASE":      " hello vista ",
		"VISTA_COMMAND_TIMEOUT":  "3000",
		"VISTA_RESTART_DELAY":    "1s",
		"VISTA_CONTINUOUS":       "false",
		"VISTA_SPEECH_POLICY":    "suppress",
		"VISTA_RECOGNIZER":       "process",
		"VISTA_RECOGNIZER_CMD":   "brabble",
		"VISTA_RECOGNIZER_ARGS":  "--json  --lang en",
		"VISTA_COMMAND_KEYWORDS": "look around, what's there,,",
		"VISTA_CONFIDENCE":       "0.6",
		"VISTA_JPEG_QUALITY":     "70",
		"VISTA_DUCK":             "true",
		"VISTA_DUCK_FACTOR":      "0.5",
	}
	cfg, err := Loader{Lookup: mapLookup(env)}.Load()
	if err != nil {
		t.Fatal(err)
	}
	a := cfg.Activation
	if a.WakePhrase != "hello vista" {
		t.Errorf("WakePhrase = %q", a.WakePhrase)
	}
	if a.CommandTimeout != 3*time.Second {
		t.Errorf("CommandTimeout = %s, want 3s", a.CommandTimeout)
	}
	if a.RestartDelay != time.Second {
		t.Errorf("RestartDelay = %s, want 1s", a.RestartDelay)
	}
	if a.Continuous {
		t.Error("Continuous = true, want false")
	}
	if cfg.SpeechPolicy != speaker.PolicySuppress {
		t.Errorf("SpeechPolicy = %v, want suppress", cfg.SpeechPolicy)
	}
	if got := strings.Join(cfg.RecognizerArgs, "|"); got != "--json|--lang|en" {
		t.Errorf("RecognizerArgs = %q", got)
	}
	if got := strings.Join(a.CommandKeywords, "|"); got != "look around|what's there" {
		t.Errorf("CommandKeywords = %q", got)
	}
	if cfg.Detector.ConfidenceThresh != float32(0.6) {
		t.Errorf("ConfidenceThresh = %v, want 0.6", cfg.Detector.ConfidenceThresh)
	}
	if cfg.Camera.JPEGQuality != 70 {
		t.Errorf("JPEGQuality = %d, want 70", cfg.Camera.JPEGQuality)
	}
	if !cfg.Duck || cfg.DuckFactor != 0.5 {
		t.Errorf("Duck = %v/%v, want true/0.5", cfg.Duck, cfg.DuckFactor)
	}
}

func TestLoaderInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad bool", map[string]string{"VISTA_CONTINUOUS": "maybe"}, "VISTA_CONTINUOUS"},
		{"bad duration", map[string]string{"VISTA_COMMAND_TIMEOUT": "soon"}, "VISTA_COMMAND_TIMEOUT"},
		{"bad policy", map[string]string{"VISTA_SPEECH_POLICY": "shout"}, "VISTA_SPEECH_POLICY"},
		{"bad backend", map[string]string{"VISTA_RECOGNIZER": "carrier-pigeon"}, "carrier-pigeon"},
		{"process without command", map[string]string{"VISTA_RECOGNIZER": "process"}, "recognizer command"},
		{"replay without dir", map[string]string{"VISTA_RECOGNIZER": "replay"}, "replay backend"},
		{"nlu without key", map[string]string{"VISTA_NLU": "1"}, "OPENAI_API_KEY"},
		{"confidence range", map[string]string{"VISTA_CONFIDENCE": "1.5"}, "confidence"},
		{"zero timeout", map[string]string{"VISTA_COMMAND_TIMEOUT": "0"}, "command timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Loader{Lookup: mapLookup(tt.env)}.Load()
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "vista.env")
	if err := os.WriteFile(path, []byte("VISTA_TEST_ENV_FILE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VISTA_TEST_ENV_FILE", "")
	os.Unsetenv("VISTA_TEST_ENV_FILE")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("VISTA_TEST_ENV_FILE"); got != "loaded" {
		t.Errorf("VISTA_TEST_ENV_FILE = %q, want loaded", got)
	}
}
