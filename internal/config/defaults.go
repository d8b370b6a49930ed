package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Endpoint: "",
		Dispatch: DispatchConfig{
			TimeoutMS: 30000,
			Headers:   map[string]string{},
		},
		Audio: AudioConfig{
			Backend:  "pulse",
			Input:    "default",
			Fallback: "default",
		},
		Transcription: TranscriptionConfig{
			Provider:  "whisper",
			Model:     "whisper-1",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Presence: PresenceConfig{SpeakingTimeoutMS: 3000, CompletionTimeoutMS: 120000},
		Chat:     ChatConfig{Mode: "chat"},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			SoundEnable:    true,
			DesktopAppName: "herald",
			ErrorTimeoutMS: 4000,
		},
		Debug: DebugConfig{},
	}
}
