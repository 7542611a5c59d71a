// Package delivery streams finished artifacts to HTTP callers.
package delivery

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"audiograb/internal/media"
)

// Deliver writes artifact to w as an attachment. It returns once the copy
// completes or the client stops reading; the file path never reaches w.
func Deliver(w http.ResponseWriter, artifact media.Artifact) error {
	file, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("artifact is empty")
	}

	contentType := artifact.MimeType
	if contentType == "" {
		contentType = media.MimeMP3
	}
	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Disposition", ContentDisposition(artifact.FileName()))
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, file)
	if err != nil {
		return fmt.Errorf("stream artifact: %w", err)
	}
	if written != info.Size() {
		return fmt.Errorf("stream artifact: wrote %d of %d bytes", written, info.Size())
	}
	return nil
}

// ContentDisposition builds an attachment header for name. Names outside
// printable ASCII get an ASCII fallback plus an RFC 5987 filename*.
func ContentDisposition(name string) string {
	fallback := asciiFallback(name)
	if strings.TrimSpace(fallback) == "" {
		fallback = "audio.mp3"
	}
	disposition := `attachment; filename="` + fallback + `"`
	if fallback == name {
		return disposition
	}
	// FormatMediaType switches to RFC 2231 encoding for non-ASCII values.
	encoded := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if idx := strings.Index(encoded, "filename*="); idx >= 0 {
		return disposition + "; " + encoded[idx:]
	}
	return disposition
}

func asciiFallback(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
