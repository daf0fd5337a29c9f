//go:build cgo

package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
vista_espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0 ? -1 : 0;
}

static int
vista_espeak_voice(const char *lang)
{
	espeak_VOICE props;
	memset(&props, 0, sizeof(props));
	props.languages = lang;
	return espeak_SetVoiceByProperties(&props) == EE_OK ? 0 : -1;
}

static int
vista_espeak_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }

	return espeak_Synchronize() == EE_OK ? 0 : -3;
}
*/
import "C"

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"
)

var espeakInit struct {
	once sync.Once
	err  error
}

// Espeak speaks through libespeak-ng. The library is process-global, so
// every Espeak shares one voice and utterances are serialized.
type Espeak struct {
	mu     sync.Mutex
	logger *slog.Logger
}

// NewEspeak initializes espeak-ng with the voice closest to locale.
func NewEspeak(locale string, logger *slog.Logger) (*Espeak, error) {
	if logger == nil {
		logger = slog.Default()
	}
	espeakInit.once.Do(func() {
		if C.vista_espeak_init() != 0 {
			espeakInit.err = fmt.Errorf("%w: espeak-ng initialization failed", ErrUnavailable)
		}
	})
	if espeakInit.err != nil {
		return nil, espeakInit.err
	}

	var voice string
	for _, lang := range voiceCandidates(locale) {
		clang := C.CString(lang)
		rc := C.vista_espeak_voice(clang)
		C.free(unsafe.Pointer(clang))
		if rc == 0 {
			voice = lang
			break
		}
	}
	if voice == "" {
		return nil, fmt.Errorf("%w: no espeak-ng voice for %q", ErrUnavailable, locale)
	}

	e := &Espeak{logger: logger.With("component", "tts.espeak")}
	e.logger.Debug("voice selected", "locale", locale, "voice", voice)
	return e, nil
}

// Speak implements Synth. Cancelling ctx cuts playback short.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	done := make(chan C.int, 1)
	go func() { done <- C.vista_espeak_say(ctext) }()

	select {
	case rc := <-done:
		if rc != 0 {
			return fmt.Errorf("espeak say failed: %d", int(rc))
		}
		return nil
	case <-ctx.Done():
		C.espeak_Cancel()
		<-done
		return ctx.Err()
	}
}
