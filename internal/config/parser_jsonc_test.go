package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestJSONCStringListUnmarshal(t *testing.T) {
	var list jsoncStringList
	require.NoError(t, list.UnmarshalJSON([]byte(`["a","b"]`)))
	require.Equal(t, []string{"a", "b"}, []string(list))

	require.NoError(t, list.UnmarshalJSON([]byte(`"a, b, , c"`)))
	require.Equal(t, []string{"a", "b", "c"}, []string(list))

	err := list.UnmarshalJSON([]byte(`123`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected string array")
}

func TestParseJSONCRejectsInvalidCommandArgv(t *testing.T) {
	_, _, err := parseJSONC(`{"output":{"speak_cmd":"unterminated ' quote"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid output.speak_cmd")

	_, _, err = parseJSONC(`{"output":{"clipboard_cmd":"unterminated ' quote"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid output.clipboard_cmd")
}

func TestParseJSONCRejectsEmptyHeaderName(t *testing.T) {
	_, _, err := parseJSONC(`{"dispatch":{"headers":{" ":"x"}}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty header name")
}

func TestParseJSONCNormalizesEnumsAndTrimsFields(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  "endpoint": "  http://localhost:5678/webhook  ",
  "audio": {"backend": " Silence "},
  "transcription": {"provider": "STATIC", "static_text": "hello"},
  "chat": {"mode": " Orb "},
  "indicator": {"backend": " HYPR ", "desktop_app_name": "  herald-dev  "}
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5678/webhook", cfg.Endpoint)
	require.Equal(t, "silence", cfg.Audio.Backend)
	require.Equal(t, "static", cfg.Transcription.Provider)
	require.Equal(t, "orb", cfg.Chat.Mode)
	require.Equal(t, "hypr", cfg.Indicator.Backend)
	require.Equal(t, "herald-dev", cfg.Indicator.DesktopAppName)
}

func TestParseJSONCIndicatorSoundFiles(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  "indicator": {
    "sound_start_file": " ~/sounds/start.wav ",
    "sound_stop_file": "/usr/share/sounds/stop.oga",
    "sound_complete_file": "done.wav",
    "sound_cancel_file": "cancel.wav",
    "sound_error_file": "error.wav",
  },
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "~/sounds/start.wav", cfg.Indicator.SoundStartFile)
	require.Equal(t, "/usr/share/sounds/stop.oga", cfg.Indicator.SoundStopFile)
	require.Equal(t, "done.wav", cfg.Indicator.SoundCompleteFile)
	require.Equal(t, "cancel.wav", cfg.Indicator.SoundCancelFile)
	require.Equal(t, "error.wav", cfg.Indicator.SoundErrorFile)
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"debug":{"audio_dump":false}}{"debug":{"audio_dump":true}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "presence": {"speaking_timeout_ms": "soon"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCUnknownFieldFails(t *testing.T) {
	_, _, err := parseJSONC(`{"riva":{"grpc":"127.0.0.1:50051"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCVocabularySupportsCommaString(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  "transcription": {"vocabulary": "Hyprland, herald, , n8n"}
}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"Hyprland", "herald", "n8n"}, cfg.Transcription.Vocabulary)
}

func TestParseFullConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, warnings, err := Parse(`
// herald config
{
  "endpoint": "grpc://127.0.0.1:7070",
  "dispatch": {
    "timeout_ms": 5000,
    "headers": {"Authorization": "Bearer $HERALD_TOKEN"},
  },
  "audio": {"input": "Elgato", "fallback": "default"},
  "transcription": {"language": "en", "base_url": "http://127.0.0.1:8000/v1"},
  "presence": {"speaking_timeout_ms": 1500, "completion_timeout_ms": 60000},
  "chat": {"keep_transcript_on_dispatch_failure": true},
  "indicator": {"sound_enable": false, "error_timeout_ms": 0},
  "output": {"speak_cmd": "piper --output-raw", "clipboard_cmd": "wl-copy"},
  "debug": {"audio_dump": true},
}
`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "grpc://127.0.0.1:7070", cfg.Endpoint)
	require.Equal(t, 5000, cfg.Dispatch.TimeoutMS)
	require.Equal(t, map[string]string{"Authorization": "Bearer $HERALD_TOKEN"}, cfg.Dispatch.Headers)
	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.Equal(t, "en", cfg.Transcription.Language)
	require.Equal(t, "whisper", cfg.Transcription.Provider)
	require.Equal(t, 1500, cfg.Presence.SpeakingTimeoutMS)
	require.Equal(t, 60000, cfg.Presence.CompletionTimeoutMS)
	require.True(t, cfg.Chat.KeepTranscriptOnDispatchFailure)
	require.False(t, cfg.Indicator.SoundEnable)
	require.Equal(t, []string{"piper", "--output-raw"}, cfg.Output.Speak.Argv)
	require.Equal(t, []string{"wl-copy"}, cfg.Output.Clipboard.Argv)
	require.True(t, cfg.Debug.EnableAudioDump)
}

func TestParseEmptyOrCommentOnlyReturnsBase(t *testing.T) {
	base := Default()
	base.Endpoint = "http://localhost:1/hook"

	cfg, _, err := Parse("   \n", base)
	require.NoError(t, err)
	require.Equal(t, base, cfg)

	cfg, _, err = Parse("// nothing yet\n/* still nothing */", base)
	require.NoError(t, err)
	require.Equal(t, base, cfg)
}

func TestParseRejectsNonObjectContent(t *testing.T) {
	_, _, err := Parse("endpoint = http://localhost", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "JSONC object")
}
