package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Endpoint      *string             `json:"endpoint"`
	Dispatch      *jsoncDispatch      `json:"dispatch"`
	Audio         *jsoncAudio         `json:"audio"`
	Transcription *jsoncTranscription `json:"transcription"`
	Presence      *jsoncPresence      `json:"presence"`
	Chat          *jsoncChat          `json:"chat"`
	Indicator     *jsoncIndicator     `json:"indicator"`
	Output        *jsoncOutput        `json:"output"`
	Debug         *jsoncDebug         `json:"debug"`
}

type jsoncDispatch struct {
	TimeoutMS *int              `json:"timeout_ms"`
	Headers   map[string]string `json:"headers"`
}

type jsoncAudio struct {
	Backend  *string `json:"backend"`
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncTranscription struct {
	Provider   *string          `json:"provider"`
	Model      *string          `json:"model"`
	Language   *string          `json:"language"`
	BaseURL    *string          `json:"base_url"`
	APIKeyEnv  *string          `json:"api_key_env"`
	StaticText *string          `json:"static_text"`
	Vocabulary *jsoncStringList `json:"vocabulary"`
}

type jsoncPresence struct {
	SpeakingTimeoutMS   *int `json:"speaking_timeout_ms"`
	CompletionTimeoutMS *int `json:"completion_timeout_ms"`
}

type jsoncChat struct {
	Mode                            *string `json:"mode"`
	KeepTranscriptOnDispatchFailure *bool   `json:"keep_transcript_on_dispatch_failure"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	Backend           *string `json:"backend"`
	SoundEnable       *bool   `json:"sound_enable"`
	DesktopAppName    *string `json:"desktop_app_name"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundCancelFile   *string `json:"sound_cancel_file"`
	SoundErrorFile    *string `json:"sound_error_file"`
}

type jsoncOutput struct {
	SpeakCmd     *string `json:"speak_cmd"`
	ClipboardCmd *string `json:"clipboard_cmd"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Endpoint != nil {
		cfg.Endpoint = strings.TrimSpace(*payload.Endpoint)
	}

	if payload.Dispatch != nil {
		if payload.Dispatch.TimeoutMS != nil {
			cfg.Dispatch.TimeoutMS = *payload.Dispatch.TimeoutMS
		}
		if payload.Dispatch.Headers != nil {
			headers := make(map[string]string, len(payload.Dispatch.Headers))
			for key, value := range payload.Dispatch.Headers {
				name := strings.TrimSpace(key)
				if name == "" {
					return nil, fmt.Errorf("dispatch.headers contains an empty header name")
				}
				headers[name] = value
			}
			cfg.Dispatch.Headers = headers
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Backend != nil {
			cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(*payload.Audio.Backend))
		}
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if t := payload.Transcription; t != nil {
		if t.Provider != nil {
			cfg.Transcription.Provider = strings.ToLower(strings.TrimSpace(*t.Provider))
		}
		if t.Model != nil {
			cfg.Transcription.Model = strings.TrimSpace(*t.Model)
		}
		if t.Language != nil {
			cfg.Transcription.Language = strings.TrimSpace(*t.Language)
		}
		if t.BaseURL != nil {
			cfg.Transcription.BaseURL = strings.TrimSpace(*t.BaseURL)
		}
		if t.APIKeyEnv != nil {
			cfg.Transcription.APIKeyEnv = strings.TrimSpace(*t.APIKeyEnv)
		}
		if t.StaticText != nil {
			cfg.Transcription.StaticText = *t.StaticText
		}
		if t.Vocabulary != nil {
			cfg.Transcription.Vocabulary = append([]string(nil), (*t.Vocabulary)...)
		}
	}

	if p := payload.Presence; p != nil {
		if p.SpeakingTimeoutMS != nil {
			cfg.Presence.SpeakingTimeoutMS = *p.SpeakingTimeoutMS
		}
		if p.CompletionTimeoutMS != nil {
			cfg.Presence.CompletionTimeoutMS = *p.CompletionTimeoutMS
		}
	}

	if payload.Chat != nil {
		if payload.Chat.Mode != nil {
			cfg.Chat.Mode = strings.ToLower(strings.TrimSpace(*payload.Chat.Mode))
		}
		if payload.Chat.KeepTranscriptOnDispatchFailure != nil {
			cfg.Chat.KeepTranscriptOnDispatchFailure = *payload.Chat.KeepTranscriptOnDispatchFailure
		}
	}

	if payload.Indicator != nil {
		if payload.Indicator.Enable != nil {
			cfg.Indicator.Enable = *payload.Indicator.Enable
		}
		if payload.Indicator.Backend != nil {
			cfg.Indicator.Backend = strings.ToLower(strings.TrimSpace(*payload.Indicator.Backend))
		}
		if payload.Indicator.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
		}
		if payload.Indicator.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*payload.Indicator.DesktopAppName)
		}
		if payload.Indicator.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *payload.Indicator.ErrorTimeoutMS
		}
		for _, f := range []struct {
			src *string
			dst *string
		}{
			{payload.Indicator.SoundStartFile, &cfg.Indicator.SoundStartFile},
			{payload.Indicator.SoundStopFile, &cfg.Indicator.SoundStopFile},
			{payload.Indicator.SoundCompleteFile, &cfg.Indicator.SoundCompleteFile},
			{payload.Indicator.SoundCancelFile, &cfg.Indicator.SoundCancelFile},
			{payload.Indicator.SoundErrorFile, &cfg.Indicator.SoundErrorFile},
		} {
			if f.src != nil {
				*f.dst = strings.TrimSpace(*f.src)
			}
		}
	}

	if payload.Output != nil {
		if payload.Output.SpeakCmd != nil {
			cmd, err := ParseCommand(*payload.Output.SpeakCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid output.speak_cmd: %w", err)
			}
			cfg.Output.Speak = cmd
		}
		if payload.Output.ClipboardCmd != nil {
			cmd, err := ParseCommand(*payload.Output.ClipboardCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid output.clipboard_cmd: %w", err)
			}
			cfg.Output.Clipboard = cmd
		}
	}

	if payload.Debug != nil && payload.Debug.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
