package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth runs a local command per segment. The command receives a JSON
// request on stdin and writes the encoded audio to stdout.
type execSynth struct {
	cmd   []string
	model string
	mu    sync.Mutex
}

type execRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Model string `json:"model,omitempty"`
}

func NewExecSynth(command, model string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, model: model}, nil
}

func (e *execSynth) Name() string { return "exec" }

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	input, err := json.Marshal(execRequest{Text: req.Text, Voice: req.Voice, Model: e.model})
	if err != nil {
		return nil, &TransportError{Message: "marshal request", Cause: err}
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return nil, &UpstreamError{Message: "tts command failed: " + msg}
		}
		return nil, &TransportError{Message: "run tts command", Cause: err}
	}
	if stdout.Len() == 0 {
		return nil, &UpstreamError{Message: "tts command produced no audio"}
	}
	return stdout.Bytes(), nil
}
