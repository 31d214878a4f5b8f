package tts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parrot/internal/tts"
	"github.com/nadzzz/parrot/internal/tts/ttstest"
)

func registryWith(t *testing.T, names ...string) *tts.Registry {
	t.Helper()
	reg := tts.NewRegistry()
	for _, n := range names {
		require.NoError(t, reg.Register(n, ttstest.New(n)))
	}
	return reg
}

func TestSelector_Select(t *testing.T) {
	all := []string{tts.ProviderNeural, tts.ProviderSystem, tts.ProviderClone}

	tests := []struct {
		name       string
		registered []string
		requested  string
		lang       string
		want       string
	}{
		{"explicit wins over language", all, tts.ProviderSystem, "de-DE", tts.ProviderSystem},
		{"explicit wins even for english", all, tts.ProviderClone, "en-US", tts.ProviderClone},
		{"unregistered explicit falls through", []string{tts.ProviderNeural}, tts.ProviderSystem, "", tts.ProviderNeural},
		{"swedish prefers system voice", all, "", "sv-SE", tts.ProviderSystem},
		{"japanese prefers system voice", all, "", "ja", tts.ProviderSystem},
		{"swedish without system uses clone", []string{tts.ProviderNeural, tts.ProviderClone}, "", "sv_SE", tts.ProviderClone},
		{"swedish with only default", []string{tts.ProviderNeural}, "", "sv-SE", tts.ProviderNeural},
		{"german goes to clone", all, "", "de-DE", tts.ProviderClone},
		{"german without clone uses default", []string{tts.ProviderNeural, tts.ProviderSystem}, "", "de-DE", tts.ProviderNeural},
		{"english uses default", all, "", "en-GB", tts.ProviderNeural},
		{"no language uses default", all, "", "", tts.ProviderNeural},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := tts.NewSelector(registryWith(t, tt.registered...), tts.DefaultRouting())
			got, err := sel.Select(tt.requested, tt.lang)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelector_NoSuitableProvider(t *testing.T) {
	sel := tts.NewSelector(registryWith(t, tts.ProviderSystem), tts.DefaultRouting())

	_, err := sel.Select("", "en")
	require.ErrorIs(t, err, tts.ErrNoProvider)
	assert.Equal(t, 422, tts.StatusCode(err))
}

func TestSelector_ConfiguredAllowList(t *testing.T) {
	routing := tts.DefaultRouting()
	routing.SystemLanguages = append(routing.SystemLanguages, "fi-FI")
	sel := tts.NewSelector(registryWith(t, tts.ProviderNeural, tts.ProviderSystem, tts.ProviderClone), routing)

	got, err := sel.Select("", "fi")
	require.NoError(t, err)
	assert.Equal(t, tts.ProviderSystem, got)

	got, err = sel.Select("", "sv-SE")
	require.NoError(t, err)
	assert.Equal(t, tts.ProviderSystem, got, "built-in languages keep their routing")
}
