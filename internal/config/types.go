// Package config resolves, parses, validates, and defaults herald configuration.
package config

// Config is the fully materialized runtime configuration used by herald.
type Config struct {
	Endpoint      string
	Dispatch      DispatchConfig
	Audio         AudioConfig
	Transcription TranscriptionConfig
	Presence      PresenceConfig
	Chat          ChatConfig
	Indicator     IndicatorConfig
	Output        OutputConfig
	Debug         DebugConfig
}

// DispatchConfig controls how transcripts are delivered to the endpoint.
type DispatchConfig struct {
	TimeoutMS int
	Headers   map[string]string
}

// AudioConfig selects the capture backend and input source.
type AudioConfig struct {
	Backend  string
	Input    string
	Fallback string
}

// TranscriptionConfig selects and configures the speech-to-text provider.
type TranscriptionConfig struct {
	Provider   string
	Model      string
	Language   string
	BaseURL    string
	APIKeyEnv  string
	StaticText string
	Vocabulary []string
}

// PresenceConfig controls presence-state timing.
type PresenceConfig struct {
	SpeakingTimeoutMS   int
	CompletionTimeoutMS int
}

// ChatConfig controls conversation log behavior.
type ChatConfig struct {
	Mode                            string
	KeepTranscriptOnDispatchFailure bool
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	SoundEnable    bool
	DesktopAppName string
	ErrorTimeoutMS int

	// Optional audio files replacing the synthesized cues.
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundCancelFile   string
	SoundErrorFile    string
}

// OutputConfig holds optional commands that consume assistant replies.
type OutputConfig struct {
	Speak     CommandConfig
	Clipboard CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
