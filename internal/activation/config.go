package activation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the activation parameters of a session.
type Config struct {
	WakePhrase      string
	CommandKeywords []string
	FallbackTokens  []string
	Locale          string

	// CommandTimeout bounds the command window. A timeout counts as an
	// empty command.
	CommandTimeout time.Duration

	// RestartDelay is the backoff before reopening a stream that ended on
	// its own. ToggleDelay is used when continuous mode is switched.
	RestartDelay time.Duration
	ToggleDelay  time.Duration

	Continuous bool

	// AwaitSpeech holds the session in Speaking until the description has
	// been spoken, so the microphone does not hear the daemon.
	AwaitSpeech bool
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		WakePhrase: "hey india",
		CommandKeywords: []string{
			"what is in front of me",
			"describe",
			"what do you see",
			"identify",
			"look",
			"describe my surroundings",
			"what's in front",
			"tell me what you see",
		},
		FallbackTokens: []string{"see", "front", "describe", "what"},
		Locale:         "en-IN",
		CommandTimeout: 4500 * time.Millisecond,
		RestartDelay:   300 * time.Millisecond,
		ToggleDelay:    250 * time.Millisecond,
		Continuous:     true,
		AwaitSpeech:    true,
	}
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	var errs []error
	if len(words(c.WakePhrase)) == 0 {
		errs = append(errs, errors.New("wake phrase is empty"))
	}
	if strings.TrimSpace(c.Locale) == "" {
		errs = append(errs, errors.New("locale is empty"))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("command timeout must be positive, got %s", c.CommandTimeout))
	}
	if c.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("restart delay must not be negative, got %s", c.RestartDelay))
	}
	if c.ToggleDelay < 0 {
		errs = append(errs, fmt.Errorf("toggle delay must not be negative, got %s", c.ToggleDelay))
	}
	return errors.Join(errs...)
}

// Rules returns the command classification rules.
func (c Config) Rules() Rules {
	return Rules{
		Keywords: c.CommandKeywords,
		Fallback: c.FallbackTokens,
		MinRunes: 2,
	}
}
