// Package doctor runs runtime readiness diagnostics for config, endpoint,
// transcription, audio, and presentation tools.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/herald/internal/audio"
	"github.com/rbright/herald/internal/config"
	"github.com/rbright/herald/internal/dispatch"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkEndpoint(ctx, cfg.Config.Endpoint))
	checks = append(checks, checkTranscription(cfg.Config.Transcription))
	checks = append(checks, checkAudio(ctx, cfg.Config.Audio))

	if cfg.Config.Indicator.Enable {
		switch cfg.Config.Indicator.Backend {
		case "hypr":
			checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
				return strings.TrimSpace(v) != ""
			}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))
			checks = append(checks, checkBinary("hyprctl", "hypr indicator backend"))
		default:
			checks = append(checks, checkBinary("busctl", "desktop notifications"))
		}
	}

	if !cfg.Config.Output.Speak.Empty() {
		checks = append(checks, checkCommand(cfg.Config.Output.Speak.Argv, "output.speak_cmd"))
	}
	if !cfg.Config.Output.Clipboard.Empty() {
		checks = append(checks, checkCommand(cfg.Config.Output.Clipboard.Argv, "output.clipboard_cmd"))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkEndpoint connects to the configured dispatch endpoint without sending
// a transcript.
func checkEndpoint(ctx context.Context, endpoint string) Check {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Check{Name: "endpoint", Pass: false, Message: "endpoint is empty"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := dispatch.Probe(probeCtx, endpoint); err != nil {
		return Check{Name: "endpoint", Pass: false, Message: err.Error()}
	}
	return Check{Name: "endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s", endpoint)}
}

func checkTranscription(cfg config.TranscriptionConfig) Check {
	switch cfg.Provider {
	case "static":
		return Check{Name: "transcription", Pass: true, Message: fmt.Sprintf("static transcript %q", cfg.StaticText)}
	default:
		if strings.TrimSpace(os.Getenv(cfg.APIKeyEnv)) == "" {
			return Check{Name: "transcription", Pass: false, Message: fmt.Sprintf("%s is not set", cfg.APIKeyEnv)}
		}
		target := "api.openai.com"
		if cfg.BaseURL != "" {
			target = cfg.BaseURL
		}
		return Check{Name: "transcription", Pass: true, Message: fmt.Sprintf("whisper model %q via %s", cfg.Model, target)}
	}
}

// checkAudio runs live device selection to surface selection/fallback issues.
func checkAudio(ctx context.Context, cfg config.AudioConfig) Check {
	if cfg.Backend == "silence" {
		return Check{Name: "audio.device", Pass: true, Message: "synthetic silence source"}
	}

	selection, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}
