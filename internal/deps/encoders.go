package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CheckEncoder reports whether ffmpeg at binary was built with encoder
// (for example libmp3lame).
func CheckEncoder(ctx context.Context, binary, encoder string) Status {
	status := Status{
		Name:        "FFmpeg " + encoder,
		Command:     binary,
		Description: "Required MP3 encoder",
	}
	path, err := exec.LookPath(strings.TrimSpace(binary))
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", binary)
		return status
	}
	status.Path = path

	probeCtx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, path, "-hide_banner", "-encoders").Output()
	if err != nil {
		status.Detail = fmt.Sprintf("list encoders: %v", err)
		return status
	}
	if hasEncoder(out, encoder) {
		status.Available = true
		return status
	}
	status.Detail = fmt.Sprintf("ffmpeg built without %s", encoder)
	return status
}

// hasEncoder scans `ffmpeg -encoders` output, whose rows look like
// " A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)".
func hasEncoder(out []byte, encoder string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == encoder {
			return true
		}
	}
	return false
}
