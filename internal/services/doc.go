// Package services defines shared utilities consumed by the job pipeline and
// its external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and request
//     identifiers for logging.
//   - The failure taxonomy (sentinel markers plus the Wrap helper) that maps
//     every pipeline error to a stable kind, HTTP status, and a message that
//     is safe to show callers.
//
// Subpackages wrap the external tools (yt-dlp, ffmpeg) behind narrow,
// injectable interfaces.
package services
