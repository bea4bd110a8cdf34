package encoder

import (
	"fmt"
	"os/exec"
	"strings"
)

// Spec is everything a CommandBuilder needs to launch one encoder run
type Spec struct {
	ProcessID  string
	RoomID     string
	Purpose    Purpose
	OutputPath string
	Target     string
}

// CommandBuilder turns a Spec into an unstarted command
type CommandBuilder interface {
	Build(spec Spec) (*exec.Cmd, error)
}

// CommandFunc adapts a function to CommandBuilder
type CommandFunc func(spec Spec) (*exec.Cmd, error)

// Build calls f(spec)
func (f CommandFunc) Build(spec Spec) (*exec.Cmd, error) {
	return f(spec)
}

// FFmpegBuilder launches ffmpeg (or a compatible binary) from argument templates
type FFmpegBuilder struct {
	Binary           string
	InputURLTemplate string
	RecordingArgs    []string
	StreamArgs       []string
}

// Build expands the argument template matching the requested purpose
func (b *FFmpegBuilder) Build(spec Spec) (*exec.Cmd, error) {
	if b.Binary == "" {
		return nil, fmt.Errorf("encoder binary is not configured")
	}

	var template []string
	switch spec.Purpose {
	case PurposeRecording:
		template = b.RecordingArgs
	case PurposeStreaming:
		if spec.Target == "" {
			return nil, fmt.Errorf("stream target is required")
		}
		template = b.StreamArgs
	default:
		return nil, fmt.Errorf("unknown encoder purpose %q", spec.Purpose)
	}

	input := strings.ReplaceAll(b.InputURLTemplate, "{room_id}", spec.RoomID)
	r := strings.NewReplacer(
		"{input}", input,
		"{output}", spec.OutputPath,
		"{target}", spec.Target,
		"{room_id}", spec.RoomID,
	)

	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = r.Replace(arg)
	}

	return exec.Command(b.Binary, args...), nil
}
