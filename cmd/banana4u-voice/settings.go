package main

import (
	"time"

	"github.com/yok-tottii/banana4u-voice/internal/assistant"
	"github.com/yok-tottii/banana4u-voice/internal/audio"
	"github.com/yok-tottii/banana4u-voice/internal/config"
	"github.com/yok-tottii/banana4u-voice/internal/conversation"
	"github.com/yok-tottii/banana4u-voice/internal/recognition"
	"github.com/yok-tottii/banana4u-voice/internal/recording"
	"github.com/yok-tottii/banana4u-voice/internal/vad"
)

// geminiDefaultModel is the model the settings file ships with.
const geminiDefaultModel = "gemini-2.0-flash"

func ms(n int) time.Duration  { return time.Duration(n) * time.Millisecond }
func sec(n int) time.Duration { return time.Duration(n) * time.Second }

func audioConfig(c *config.Config) audio.Config {
	ac := audio.DefaultConfig()
	ac.DeviceID = c.AudioDeviceID
	return ac
}

func conversationConfig(c *config.Config) conversation.Config {
	cc := conversation.DefaultConfig()
	cc.VAD = vad.Config{
		VoiceThreshold:   c.VAD.VoiceThreshold,
		SilenceThreshold: c.VAD.SilenceThreshold,
		SilenceDuration:  c.VAD.SilenceDuration(),
	}
	cc.Audio = audioConfig(c)
	cc.PlaybackTimeout = ms(c.Conversation.PlaybackTimeoutMs)
	cc.PollInterval = ms(c.Conversation.PollIntervalMs)
	cc.SettleDelay = ms(c.Conversation.SettleDelayMs)
	cc.ErrorBackoff = ms(c.Conversation.ErrorBackoffMs)
	cc.OnsetTimeout = sec(c.Conversation.OnsetTimeoutSec)
	cc.MaxRecordTime = sec(c.MaxRecordTime)
	cc.MinTranscriptChars = c.Conversation.MinTranscriptChars
	return cc
}

func recordingConfig(c *config.Config) recording.Config {
	return recording.Config{
		MaxDuration: sec(c.MaxRecordTime),
		Audio:       audioConfig(c),
	}
}

// providerModel drops the shipped Gemini model name when another provider
// is selected, so that provider falls back to its own default.
func providerModel(provider, model string) string {
	if provider != "gemini" && provider != "" && model == geminiDefaultModel {
		return ""
	}
	return model
}

func apiKey(c *config.Config, provider string) string {
	if provider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func recognitionConfig(c *config.Config) (recognition.Config, error) {
	rc := recognition.DefaultConfig()
	rc.Provider = c.STT.Provider
	rc.Model = providerModel(c.STT.Provider, c.STT.Model)
	rc.Language = c.Language
	rc.APIKey = apiKey(c, c.STT.Provider)
	if c.STT.TimeoutSec > 0 {
		rc.Timeout = sec(c.STT.TimeoutSec)
	}
	if c.STT.ModelPath != "" {
		path, err := config.ExpandPath(c.STT.ModelPath)
		if err != nil {
			return rc, err
		}
		rc.ModelPath = path
	}
	return rc, nil
}

func assistantConfig(c *config.Config) assistant.Config {
	return assistant.Config{
		Provider:     c.Assistant.Provider,
		Model:        providerModel(c.Assistant.Provider, c.Assistant.Model),
		SystemPrompt: c.Assistant.SystemPrompt,
		APIKey:       apiKey(c, c.Assistant.Provider),
		HistoryTurns: c.Assistant.HistoryTurns,
	}
}
