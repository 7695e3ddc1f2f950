package bots

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"openclaw/internal/config"
)

// TTS synthesizes speech by invoking an external binary that reads text on
// stdin and writes a WAV file.
type TTS struct {
	binary   string
	modelDir string
	timeout  time.Duration
}

// NewTTS returns a synthesizer, or nil when TTS is disabled or the binary
// is not configured.
func NewTTS(cfg config.BotsConfig) *TTS {
	if !cfg.TTSEnabled || cfg.TTSBinary == "" {
		return nil
	}
	return &TTS{
		binary:   cfg.TTSBinary,
		modelDir: cfg.TTSModelDir,
		timeout:  time.Duration(cfg.TTSTimeout) * time.Second,
	}
}

// Synthesize renders text with the given voice and returns WAV bytes.
func (t *TTS) Synthesize(text, voice string) ([]byte, error) {
	if voice == "" {
		return nil, fmt.Errorf("no voice configured")
	}

	out, err := os.CreateTemp("", "openclaw-tts-*.wav")
	if err != nil {
		return nil, err
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	args := []string{"--output_file", outPath}
	if t.modelDir != "" {
		args = append(args, "--model", filepath.Join(t.modelDir, voice+".onnx"))
	} else {
		args = append(args, "--voice", voice)
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("tts %s: %w: %s", t.binary, err, detail)
		}
		return nil, fmt.Errorf("tts %s: %w", t.binary, err)
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		return nil, err
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("tts produced no audio")
	}
	return wav, nil
}
