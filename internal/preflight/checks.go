package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"audiograb/internal/config"
	"audiograb/internal/deps"
)

// mp3Encoder is the ffmpeg encoder every transcode depends on.
const mp3Encoder = "libmp3lame"

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external programs a job shells out to. The
// daemon and the CLI deps command share this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Extractor.Binary,
			Description: "Required for metadata extraction",
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcoder.FFmpegBinary,
			Description: "Required for MP3 transcoding",
			VersionArgs: []string{"-hide_banner", "-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Transcoder.FFprobeBinary,
			Description: "Verifies transcoded output",
			Optional:    !cfg.Transcoder.VerifyOutput,
			VersionArgs: []string{"-hide_banner", "-version"},
		},
	}
	statuses := deps.CheckBinaries(ctx, requirements)
	if statuses[1].Available {
		statuses = append(statuses, deps.CheckEncoder(ctx, cfg.Transcoder.FFmpegBinary, mp3Encoder))
	}
	return statuses
}
