// Package i18n holds the user-facing strings for the tray and notifications.
package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Language represents a supported language
type Language string

const (
	// Japanese language
	LanguageJapanese Language = "ja"
	// English language
	LanguageEnglish Language = "en"
)

// Translator manages translations for the application
type Translator struct {
	currentLanguage Language
	translations    map[Language]map[string]string
	mu              sync.RWMutex
}

// NewTranslator creates an empty translator
func NewTranslator(language Language) *Translator {
	return &Translator{
		currentLanguage: language,
		translations:    make(map[Language]map[string]string),
	}
}

// LoadTranslations loads translations from JSON data
func (t *Translator) LoadTranslations(language Language, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var translations map[string]string
	if err := json.Unmarshal(data, &translations); err != nil {
		return fmt.Errorf("failed to unmarshal translations: %w", err)
	}

	t.translations[language] = translations
	return nil
}

// LoadTranslationsFromFile loads translations from a JSON file
func (t *Translator) LoadTranslationsFromFile(language Language, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read translation file: %w", err)
	}

	return t.LoadTranslations(language, data)
}

// SetLanguage sets the current language
func (t *Translator) SetLanguage(language Language) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentLanguage = language
}

// GetLanguage returns the current language
func (t *Translator) GetLanguage() Language {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentLanguage
}

// Translate translates a key in the current language
func (t *Translator) Translate(key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if translations, ok := t.translations[t.currentLanguage]; ok {
		if text, ok := translations[key]; ok {
			return text
		}
	}

	// Fallback to English if translation not found
	if t.currentLanguage != LanguageEnglish {
		if translations, ok := t.translations[LanguageEnglish]; ok {
			if text, ok := translations[key]; ok {
				return text
			}
		}
	}

	// Return key itself if no translation found
	return key
}

// TranslateWithFormat translates a key and formats with parameters
func (t *Translator) TranslateWithFormat(key string, params map[string]string) string {
	text := t.Translate(key)

	// Simple string replacement for parameters
	for param, value := range params {
		placeholder := fmt.Sprintf("{%s}", param)
		text = strings.ReplaceAll(text, placeholder, value)
	}

	return text
}

// GetAllTranslations returns all translations for the current language
func (t *Translator) GetAllTranslations() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if translations, ok := t.translations[t.currentLanguage]; ok {
		// Return a copy to prevent external modifications
		result := make(map[string]string)
		for k, v := range translations {
			result[k] = v
		}
		return result
	}

	return make(map[string]string)
}

// HasTranslation checks if a translation key exists
func (t *Translator) HasTranslation(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if translations, ok := t.translations[t.currentLanguage]; ok {
		_, ok := translations[key]
		return ok
	}

	return false
}

// ValidateLanguage validates that a language is supported
func ValidateLanguage(language string) bool {
	return language == string(LanguageJapanese) || language == string(LanguageEnglish)
}

// DetectSystemLanguage reads the POSIX locale variables. Anything that is
// not Japanese falls back to English.
func DetectSystemLanguage() Language {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(name); v != "" {
			if strings.HasPrefix(strings.ToLower(v), "ja") {
				return LanguageJapanese
			}
			return LanguageEnglish
		}
	}
	return LanguageEnglish
}

// Resolve maps the ui_language setting to a language. "auto" and unknown
// values use the system locale.
func Resolve(setting string) Language {
	if ValidateLanguage(setting) {
		return Language(setting)
	}
	return DetectSystemLanguage()
}

// GetSupportedLanguages returns a list of supported languages
func GetSupportedLanguages() []Language {
	return []Language{LanguageJapanese, LanguageEnglish}
}

// NewDefault returns a translator preloaded with the built-in strings.
func NewDefault(language Language) *Translator {
	t := NewTranslator(language)
	t.translations[LanguageEnglish] = DefaultEnglishTranslations()
	t.translations[LanguageJapanese] = DefaultJapaneseTranslations()
	return t
}

// ErrorKey returns the key for an error event code.
func ErrorKey(code string) string { return "error." + code }

// NoticeKey returns the key for a notice event code.
func NoticeKey(code string) string { return "notice." + code }

// StatusKey returns the key for a loop phase or push-to-talk state name.
func StatusKey(state string) string { return "status." + state }

// DefaultEnglishTranslations returns default English translations
func DefaultEnglishTranslations() map[string]string {
	return map[string]string{
		"app.name": "Banana4U Voice",

		// Menu items
		"menu.conversation_start": "Start Conversation",
		"menu.conversation_stop":  "Stop Conversation",
		"menu.push_to_talk":       "Push-to-Talk: {hotkey}",
		"menu.devices":            "Microphone",
		"menu.device_default":     "System Default",
		"menu.settings":           "Open Settings...",
		"menu.quit":               "Quit",

		// Permissions
		"permission.microphone":    "Microphone",
		"permission.accessibility": "Accessibility",
		"permission.granted":       "✓ Granted",
		"permission.denied":        "✗ Denied",
		"permission.request":       "Open Settings",

		// Errors
		"error.device-no-device":         "No microphone was found.",
		"error.device-denylisted-only":   "Only virtual or loopback inputs are available. Connect a real microphone.",
		"error.device-permission-denied": "Microphone access denied. Allow it in System Settings.",
		"error.device-open-failed":       "The microphone could not be opened.",
		"error.format-unsupported":       "The audio format isn't supported by the speech service.",
		"error.rate-limited":             "Too many requests. Please wait a moment and try again.",
		"error.auth-invalid":             "There's an issue with the API key. Please check the configuration.",
		"error.timeout":                  "Transcription is taking too long. Please try shorter audio.",
		"error.network":                  "Network connection issue. Please check your internet.",
		"error.blocked":                  "The content was blocked by safety filters. Please try again.",
		"error.empty":                    "No speech was recognized. Please speak clearly and try again.",
		"error.unknown":                  "Transcription failed.",
		"error.audio-too-large":          "The recording is too large to transcribe.",
		"error.error":                    "Something went wrong.",

		// Notices
		"notice.echo-only":             "Only heard the AI's voice. Please speak again.",
		"notice.audio-too-short":       "The recording was too short.",
		"notice.max-duration":          "Maximum recording time reached. Release the hotkey to transcribe.",
		"notice.playback-sync-timeout": "Playback did not stop in time.",

		// Status
		"status.idle":           "Idle",
		"status.preparing-turn": "Preparing",
		"status.awaiting-voice": "Listening",
		"status.recording":      "Recording",
		"status.processing":     "Processing",
		"status.transcribing":   "Transcribing",
		"status.filtering":      "Filtering",
		"status.dispatching":    "Thinking",
		"status.speaking":       "Speaking",
	}
}

// DefaultJapaneseTranslations returns default Japanese translations
func DefaultJapaneseTranslations() map[string]string {
	return map[string]string{
		"app.name": "Banana4U Voice",

		// Menu items
		"menu.conversation_start": "会話を開始",
		"menu.conversation_stop":  "会話を終了",
		"menu.push_to_talk":       "プッシュトゥトーク: {hotkey}",
		"menu.devices":            "マイク",
		"menu.device_default":     "システムデフォルト",
		"menu.settings":           "設定を開く...",
		"menu.quit":               "終了",

		// Permissions
		"permission.microphone":    "マイク",
		"permission.accessibility": "アクセシビリティ",
		"permission.granted":       "✓ 許可済み",
		"permission.denied":        "✗ 拒否",
		"permission.request":       "設定を開く",

		// Errors
		"error.device-no-device":         "マイクが見つかりません",
		"error.device-denylisted-only":   "仮想デバイスしかありません。実際のマイクを接続してください",
		"error.device-permission-denied": "マイクへのアクセスが拒否されました。システム設定で許可してください",
		"error.device-open-failed":       "マイクを開けませんでした",
		"error.format-unsupported":       "音声形式が音声認識サービスでサポートされていません",
		"error.rate-limited":             "リクエストが多すぎます。しばらく待ってから再試行してください",
		"error.auth-invalid":             "APIキーに問題があります。設定を確認してください",
		"error.timeout":                  "文字起こしに時間がかかりすぎています。短い音声で試してください",
		"error.network":                  "ネットワーク接続に問題があります",
		"error.blocked":                  "安全フィルタによりブロックされました",
		"error.empty":                    "音声を認識できませんでした。はっきり話してください",
		"error.unknown":                  "文字起こしに失敗しました",
		"error.audio-too-large":          "録音が大きすぎて文字起こしできません",
		"error.error":                    "エラーが発生しました",

		// Notices
		"notice.echo-only":             "アシスタント自身の音声のみが聞こえました",
		"notice.audio-too-short":       "録音が短すぎます",
		"notice.max-duration":          "最大録音時間に達しました。ホットキーを離すと文字起こしします",
		"notice.playback-sync-timeout": "再生が時間内に停止しませんでした",

		// Status
		"status.idle":           "待機中",
		"status.preparing-turn": "準備中",
		"status.awaiting-voice": "聞き取り中",
		"status.recording":      "録音中",
		"status.processing":     "処理中",
		"status.transcribing":   "文字起こし中",
		"status.filtering":      "フィルタ中",
		"status.dispatching":    "応答生成中",
		"status.speaking":       "再生中",
	}
}
