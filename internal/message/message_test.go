package message

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nadzzz/parrot/internal/tts"
)

func TestToRequest_LeavesDefaultsToDispatcher(t *testing.T) {
	r := SpeechRequest{Input: " Hello ", Voice: " af_heart ", Language: "sv-SE ", Provider: " apple_say", Format: " MP3"}
	assert.Equal(t, tts.Request{
		Text:         " Hello ",
		VoiceID:      "af_heart",
		LanguageCode: "sv-SE",
		ProviderHint: "apple_say",
		Format:       " MP3",
	}, r.ToRequest())

	speed := 1.5
	r = SpeechRequest{Input: "Hi", Speed: &speed}
	assert.Equal(t, 1.5, r.ToRequest().Speed)
}
