package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// Runner produces yt-dlp's single-JSON description of a URL.
type Runner interface {
	DumpJSON(ctx context.Context, url string) ([]byte, error)
}

type commandRunner struct {
	binary string
}

func (r commandRunner) DumpJSON(ctx context.Context, url string) ([]byte, error) {
	cmd := ytdlp.New().
		SetExecutable(r.binary).
		IgnoreConfig().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings()

	result, err := cmd.Run(ctx, url)
	if err != nil {
		if result != nil {
			if line := lastLine(result.Stderr); line != "" {
				return nil, fmt.Errorf("%w: %s", err, line)
			}
		}
		return nil, err
	}
	if result == nil || strings.TrimSpace(result.Stdout) == "" {
		return nil, errors.New("yt-dlp returned no output")
	}
	return []byte(result.Stdout), nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
