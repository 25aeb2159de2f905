// Package tts reads replies aloud with espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

int
voxline_say(const char *text, const char *lang)
{
	if (!text || !lang)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE voice = { 0 };
	voice.languages = lang;
	espeak_SetVoiceByProperties(&voice);

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// espeak keeps global state
var mu sync.Mutex

// Speak blocks until text has been played in the voice for lang ("en", "ru").
func Speak(text, lang string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if lang == "" {
		lang = "en"
	}

	mu.Lock()
	defer mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(lang)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.voxline_say(ctext, clang); rc != 0 {
		return fmt.Errorf("espeak failed: %d", int(rc))
	}
	return nil
}
