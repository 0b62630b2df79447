package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter shells out to ffmpeg.
type Converter struct {
	// Path is the ffmpeg binary, looked up on PATH when empty.
	Path string
}

func NewConverter(path string) *Converter {
	if path == "" {
		path = "ffmpeg"
	}
	return &Converter{Path: path}
}

// ConvertToOgg pipes audio through ffmpeg and returns an ogg stream.
//
//	ffmpeg -i pipe:0 -f ogg pipe:1
func (c *Converter) ConvertToOgg(ctx context.Context, audio []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, "-hide_banner", "-loglevel", "error", "-i", "pipe:0", "-f", "ogg", "pipe:1")
	cmd.Stdin = bytes.NewReader(audio)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, lastLine(msg))
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg: empty output")
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
