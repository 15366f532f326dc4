package i18n

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTranslator(t *testing.T) {
	translator := NewTranslator(LanguageJapanese)
	require.NotNil(t, translator)
	assert.Equal(t, LanguageJapanese, translator.GetLanguage())

	translator.SetLanguage(LanguageEnglish)
	assert.Equal(t, LanguageEnglish, translator.GetLanguage())
}

func TestLoadTranslations(t *testing.T) {
	translator := NewTranslator(LanguageJapanese)

	err := translator.LoadTranslations(LanguageJapanese, []byte(`{"menu.quit": "終了"}`))
	require.NoError(t, err)
	assert.Equal(t, "終了", translator.Translate("menu.quit"))

	assert.Error(t, translator.LoadTranslations(LanguageJapanese, []byte(`not json`)))
}

func TestLoadTranslationsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"menu.quit": "Exit"}`), 0o644))

	translator := NewDefault(LanguageEnglish)
	require.NoError(t, translator.LoadTranslationsFromFile(LanguageEnglish, path))
	assert.Equal(t, "Exit", translator.Translate("menu.quit"))

	assert.Error(t, translator.LoadTranslationsFromFile(LanguageEnglish, filepath.Join(t.TempDir(), "missing.json")))
}

func TestTranslateFallback(t *testing.T) {
	translator := NewTranslator(LanguageJapanese)
	require.NoError(t, translator.LoadTranslations(LanguageEnglish, []byte(`{"only.english": "English"}`)))
	require.NoError(t, translator.LoadTranslations(LanguageJapanese, []byte(`{}`)))

	assert.Equal(t, "English", translator.Translate("only.english"))
	assert.Equal(t, "missing.key", translator.Translate("missing.key"))
}

func TestTranslateWithFormat(t *testing.T) {
	translator := NewDefault(LanguageEnglish)
	got := translator.TranslateWithFormat("menu.push_to_talk", map[string]string{"hotkey": "⌃⌥Space"})
	assert.Equal(t, "Push-to-Talk: ⌃⌥Space", got)
}

func TestGetAllTranslationsReturnsCopy(t *testing.T) {
	translator := NewDefault(LanguageEnglish)

	all := translator.GetAllTranslations()
	all["menu.quit"] = "changed"

	assert.Equal(t, "Quit", translator.Translate("menu.quit"))
	assert.Empty(t, NewTranslator(LanguageEnglish).GetAllTranslations())
}

func TestHasTranslation(t *testing.T) {
	translator := NewDefault(LanguageJapanese)
	assert.True(t, translator.HasTranslation("menu.quit"))
	assert.False(t, translator.HasTranslation("no.such.key"))
}

func TestEventKeysAreTranslated(t *testing.T) {
	errorCodes := []string{
		"device-no-device", "device-denylisted-only", "device-permission-denied", "device-open-failed",
		"format-unsupported", "rate-limited", "auth-invalid", "timeout", "network", "blocked", "empty", "unknown",
		"audio-too-large", "error",
	}
	notices := []string{"echo-only", "audio-too-short", "max-duration", "playback-sync-timeout"}
	states := []string{
		"idle", "preparing-turn", "awaiting-voice", "recording", "processing",
		"transcribing", "filtering", "dispatching", "speaking",
	}

	for _, lang := range GetSupportedLanguages() {
		translator := NewDefault(lang)
		for _, code := range errorCodes {
			assert.True(t, translator.HasTranslation(ErrorKey(code)), "%s %s", lang, code)
		}
		for _, code := range notices {
			assert.True(t, translator.HasTranslation(NoticeKey(code)), "%s %s", lang, code)
		}
		for _, state := range states {
			assert.True(t, translator.HasTranslation(StatusKey(state)), "%s %s", lang, state)
		}
	}
}

func TestDefaultTranslationsHaveSameKeys(t *testing.T) {
	en := DefaultEnglishTranslations()
	ja := DefaultJapaneseTranslations()
	require.Equal(t, len(en), len(ja))
	for key := range en {
		assert.Contains(t, ja, key)
	}
}

func TestValidateLanguage(t *testing.T) {
	assert.True(t, ValidateLanguage("ja"))
	assert.True(t, ValidateLanguage("en"))
	assert.False(t, ValidateLanguage("fr"))
	assert.False(t, ValidateLanguage(""))
}

func TestDetectSystemLanguage(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")

	t.Setenv("LANG", "ja_JP.UTF-8")
	assert.Equal(t, LanguageJapanese, DetectSystemLanguage())
	assert.Equal(t, LanguageJapanese, Resolve("auto"))
	assert.Equal(t, LanguageEnglish, Resolve("en"))

	t.Setenv("LANG", "de_DE.UTF-8")
	assert.Equal(t, LanguageEnglish, DetectSystemLanguage())

	t.Setenv("LANG", "")
	assert.Equal(t, LanguageEnglish, DetectSystemLanguage())

	t.Setenv("LC_ALL", "ja_JP.UTF-8")
	t.Setenv("LANG", "en_US.UTF-8")
	assert.Equal(t, LanguageJapanese, DetectSystemLanguage())
}

func TestGetSupportedLanguages(t *testing.T) {
	assert.ElementsMatch(t, []Language{LanguageJapanese, LanguageEnglish}, GetSupportedLanguages())
}

func TestConcurrentTranslation(t *testing.T) {
	translator := NewDefault(LanguageEnglish)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				translator.SetLanguage(LanguageJapanese)
			}
			assert.NotEqual(t, "menu.quit", translator.Translate("menu.quit"))
		}(i)
	}
	wg.Wait()
}
