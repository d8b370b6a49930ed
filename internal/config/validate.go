package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		warnings = append(warnings, Warning{Message: "endpoint is empty; turns will fail until one is set with `herald endpoint <url>`"})
	} else if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if cfg.Dispatch.TimeoutMS < 0 {
		return nil, fmt.Errorf("dispatch.timeout_ms must be >= 0")
	}

	switch cfg.Audio.Backend {
	case "pulse", "silence":
	default:
		return nil, fmt.Errorf("audio.backend must be one of: pulse, silence")
	}

	switch cfg.Transcription.Provider {
	case "whisper":
		envName := strings.TrimSpace(cfg.Transcription.APIKeyEnv)
		if envName == "" {
			return nil, fmt.Errorf("transcription.api_key_env must not be empty when transcription.provider=whisper")
		}
		if strings.TrimSpace(os.Getenv(envName)) == "" {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("environment variable %s is not set; transcription will fail", envName)})
		}
		if cfg.Transcription.BaseURL != "" {
			if _, err := url.ParseRequestURI(cfg.Transcription.BaseURL); err != nil {
				return nil, fmt.Errorf("transcription.base_url is not a valid URL: %w", err)
			}
		}
	case "static":
		if strings.TrimSpace(cfg.Transcription.StaticText) == "" {
			warnings = append(warnings, Warning{Message: "transcription.static_text is empty; every turn will report no speech"})
		}
	default:
		return nil, fmt.Errorf("transcription.provider must be one of: whisper, static")
	}

	if cfg.Presence.SpeakingTimeoutMS <= 0 {
		return nil, fmt.Errorf("presence.speaking_timeout_ms must be > 0")
	}
	if cfg.Presence.CompletionTimeoutMS < cfg.Presence.SpeakingTimeoutMS {
		return nil, fmt.Errorf("presence.completion_timeout_ms must be >= presence.speaking_timeout_ms")
	}

	switch cfg.Chat.Mode {
	case "chat", "orb":
	default:
		return nil, fmt.Errorf("chat.mode must be one of: chat, orb")
	}

	switch cfg.Indicator.Backend {
	case "desktop":
		if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
			return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
		}
	case "hypr":
	default:
		return nil, fmt.Errorf("indicator.backend must be one of: desktop, hypr")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.Output.Speak.Raw != "" && cfg.Output.Speak.Empty() {
		warnings = append(warnings, Warning{Message: "output.speak_cmd is commented out; speaking ends on the fallback timer"})
	}

	return warnings, nil
}

func validateEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("endpoint is not a valid URL: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "grpc":
	default:
		return fmt.Errorf("endpoint scheme must be one of: http, https, grpc (got %q)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint %q has no host", raw)
	}
	return nil
}
