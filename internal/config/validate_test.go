package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsWarnAboutMissingEndpointAndKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "endpoint is empty")
	require.Contains(t, warnings[1].Message, "OPENAI_API_KEY")
}

func TestValidateStaticProviderNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.Endpoint = "https://example.com/hook"
	cfg.Transcription.Provider = "static"
	cfg.Transcription.StaticText = "turn on the lights"

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "endpoint scheme", mutate: func(c *Config) { c.Endpoint = "ftp://host/x" }, wantErr: "endpoint scheme"},
		{name: "endpoint host", mutate: func(c *Config) { c.Endpoint = "http:///path" }, wantErr: "no host"},
		{name: "negative dispatch timeout", mutate: func(c *Config) { c.Dispatch.TimeoutMS = -1 }, wantErr: "dispatch.timeout_ms"},
		{name: "audio backend", mutate: func(c *Config) { c.Audio.Backend = "alsa" }, wantErr: "audio.backend"},
		{name: "provider", mutate: func(c *Config) { c.Transcription.Provider = "riva" }, wantErr: "transcription.provider"},
		{name: "missing api key env", mutate: func(c *Config) { c.Transcription.APIKeyEnv = " " }, wantErr: "api_key_env"},
		{name: "bad base url", mutate: func(c *Config) { c.Transcription.BaseURL = "not a url" }, wantErr: "base_url"},
		{name: "zero speaking timeout", mutate: func(c *Config) { c.Presence.SpeakingTimeoutMS = 0 }, wantErr: "speaking_timeout_ms"},
		{name: "completion timeout below fallback", mutate: func(c *Config) { c.Presence.CompletionTimeoutMS = 100 }, wantErr: "completion_timeout_ms"},
		{name: "chat mode", mutate: func(c *Config) { c.Chat.Mode = "voice" }, wantErr: "chat.mode"},
		{name: "indicator backend", mutate: func(c *Config) { c.Indicator.Backend = "waybar" }, wantErr: "indicator.backend"},
		{name: "indicator app name", mutate: func(c *Config) { c.Indicator.DesktopAppName = "" }, wantErr: "desktop_app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnsOnCommentedSpeakCommand(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := Default()
	cfg.Endpoint = "grpc://127.0.0.1:7070"
	cfg.Output.Speak = CommandConfig{Raw: "# piper"}

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "fallback timer")
}
