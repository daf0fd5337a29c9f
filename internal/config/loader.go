package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vista/internal/speaker"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// LoadEnvFile reads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load applies environment overrides to the defaults and validates the
// result.
func (l Loader) Load() (Config, error) {
	cfg, err := l.apply(Default())
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) apply(cfg Config) (Config, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	overrideString(lookup, "VISTA_LOG_LEVEL", &cfg.LogLevel)

	a := &cfg.Activation
	overrideString(lookup, "VISTA_WAKE_PHRASE", &a.WakePhrase)
	overrideString(lookup, "VISTA_LOCALE", &a.Locale)
	overrideList(lookup, "VISTA_COMMAND_KEYWORDS", &a.CommandKeywords)

	overrideString(lookup, "VISTA_CAMERA", &cfg.Camera.Device)
	overrideString(lookup, "VISTA_MODEL", &cfg.Detector.ModelPath)
	overrideString(lookup, "VISTA_TTS", &cfg.TTS)
	overrideString(lookup, "VISTA_RECOGNIZER", &cfg.Backend)
	overrideString(lookup, "VISTA_WHISPER_MODEL", &cfg.WhisperModel)
	overrideString(lookup, "VISTA_RECOGNIZER_CMD", &cfg.RecognizerCmd)
	overrideFields(lookup, "VISTA_RECOGNIZER_ARGS", &cfg.RecognizerArgs)
	overrideString(lookup, "VISTA_REPLAY_DIR", &cfg.ReplayDir)
	overrideString(lookup, "VISTA_CUE", &cfg.CuePath)
	overrideString(lookup, "VISTA_SOCKET", &cfg.SocketPath)
	overrideString(lookup, "VISTA_BUS_URL", &cfg.BusURL)
	overrideString(lookup, "VISTA_SHARD", &cfg.Shard)
	overrideString(lookup, "VISTA_PROXY", &cfg.Proxy)
	overrideString(lookup, "VISTA_OPENAI_MODEL", &cfg.OpenAIModel)
	overrideString(lookup, "OPENAI_API_KEY", &cfg.OpenAIKey)

	var policy string
	overrideString(lookup, "VISTA_SPEECH_POLICY", &policy)
	if policy != "" {
		p, err := speaker.ParsePolicy(policy)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid value for VISTA_SPEECH_POLICY: %w", err)
		}
		cfg.SpeechPolicy = p
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"VISTA_COMMAND_TIMEOUT", &a.CommandTimeout},
		{"VISTA_RESTART_DELAY", &a.RestartDelay},
		{"VISTA_COOLDOWN", &cfg.Cooldown},
	}
	for _, d := range durations {
		if err := overrideDuration(lookup, d.key, d.target); err != nil {
			return Config{}, err
		}
	}

	bools := []struct {
		key    string
		target *bool
	}{
		{"VISTA_CONTINUOUS", &a.Continuous},
		{"VISTA_AWAIT_SPEECH", &a.AwaitSpeech},
		{"VISTA_COUNT_PEOPLE", &cfg.CountPeople},
		{"VISTA_DUCK", &cfg.Duck},
		{"VISTA_TICKS", &cfg.Ticks},
		{"VISTA_NLU", &cfg.NLU},
	}
	for _, b := range bools {
		if err := overrideBool(lookup, b.key, b.target); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"VISTA_FRAME_WIDTH", &cfg.Camera.Width},
		{"VISTA_FRAME_HEIGHT", &cfg.Camera.Height},
		{"VISTA_JPEG_QUALITY", &cfg.Camera.JPEGQuality},
	}
	for _, i := range ints {
		if err := overrideInt(lookup, i.key, i.target); err != nil {
			return Config{}, err
		}
	}

	if err := overrideFloat32(lookup, "VISTA_CONFIDENCE", &cfg.Detector.ConfidenceThresh); err != nil {
		return Config{}, err
	}
	if err := overrideFloat32(lookup, "VISTA_NMS", &cfg.Detector.NMSThresh); err != nil {
		return Config{}, err
	}
	if err := overrideFloat(lookup, "VISTA_DUCK_FACTOR", &cfg.DuckFactor); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

// overrideList splits a comma separated value.
func overrideList(lookup func(string) (string, bool), key string, target *[]string) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*target = out
}

func overrideFields(lookup func(string) (string, bool), key string, target *[]string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.Fields(value)
	}
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideFloat32(lookup func(string) (string, bool), key string, target *float32) error {
	v := float64(*target)
	if err := overrideFloat(lookup, key, &v); err != nil {
		return err
	}
	*target = float32(v)
	return nil
}

// overrideDuration accepts Go durations ("4.5s") or bare milliseconds.
func overrideDuration(lookup func(string) (string, bool), key string, target *time.Duration) error {
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		*target = time.Duration(ms) * time.Millisecond
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config: invalid value for %s: %w", key, err)
	}
	*target = parsed
	return nil
}
