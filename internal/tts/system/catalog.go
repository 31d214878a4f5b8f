package system

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/nadzzz/parrot/internal/tts"
)

var (
	// localeToken matches the language column of `say -v ?` ("sv_SE").
	localeToken = regexp.MustCompile(`^[a-z]{2}_[A-Z]{2}$`)

	// bareLocale matches a voice id that is really a language ("sv-SE", "sv_se").
	bareLocale = regexp.MustCompile(`^[a-z]{2}[-_][A-Za-z]{2}$`)
)

// ParseVoiceListing turns `say -v ?` output into catalog entries.
//
//	Alva                sv_SE    # Hej, jag heter Alva.
//	Bad News            en_US    # The light you see ...
//
// The first token is the voice id and the first locale-shaped token its
// language; lines without one (novelty voices) are dropped. Entries are
// unique by (id, lang) in first-seen order.
func ParseVoiceListing(out string) []tts.Voice {
	var voices []tts.Voice
	seen := make(map[[2]string]struct{})

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		cols := strings.Fields(line)
		if len(cols) < 2 {
			continue
		}
		lang := ""
		for _, c := range cols[1:] {
			if localeToken.MatchString(c) {
				lang = c
				break
			}
		}
		if lang == "" {
			continue
		}
		key := [2]string{cols[0], lang}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		voices = append(voices, tts.Voice{ID: cols[0], Provider: tts.ProviderSystem, Lang: lang})
	}
	return voices
}

// normalizeLocale turns "sv-se", "SV_SE" or "sv" into "sv_SE" / "sv".
func normalizeLocale(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "-", "_")
	base, region, found := strings.Cut(code, "_")
	base = strings.ToLower(base)
	if !found {
		return base
	}
	return base + "_" + strings.ToUpper(region)
}

// ResolveVoice picks the concrete voice for a request. A voice id that is
// really a locale is treated as the language. An explicit voice wins;
// otherwise the catalog is searched for an exact locale, then the base
// language, then fallback is used.
func ResolveVoice(catalog []tts.Voice, voiceID, languageCode, fallback string) string {
	if bareLocale.MatchString(voiceID) {
		languageCode, voiceID = voiceID, ""
	}
	if voiceID != "" {
		return voiceID
	}
	if languageCode == "" {
		return fallback
	}

	want := normalizeLocale(languageCode)
	for _, v := range catalog {
		if v.Lang == want {
			return v.ID
		}
	}

	base := tts.BaseLanguage(want)
	for _, v := range catalog {
		if strings.HasPrefix(v.Lang, base+"_") {
			return v.ID
		}
	}
	return fallback
}
