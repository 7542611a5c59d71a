package media

import (
	"net/url"
	"strings"

	"audiograb/internal/services"
)

// MimeMP3 is the content type of every delivered artifact.
const MimeMP3 = "audio/mpeg"

const maxURLLength = 2048

// JobRequest is an accepted, validated request. Build it with NewJobRequest.
type JobRequest struct {
	URL  string
	Tier Tier
}

// NewJobRequest validates rawURL and resolves the quality tier.
func NewJobRequest(rawURL, quality string) (JobRequest, error) {
	parsed, err := ValidateURL(rawURL)
	if err != nil {
		return JobRequest{}, err
	}
	return JobRequest{URL: parsed.String(), Tier: ParseTier(quality)}, nil
}

// ValidateURL checks that raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "received", "validate url", "url is required", nil)
	}
	if len(trimmed) > maxURLLength {
		return nil, services.Wrap(services.ErrInvalidInput, "received", "validate url", "url is too long", nil)
	}
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "received", "validate url", "url is not valid", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return nil, services.Wrap(services.ErrInvalidInput, "received", "validate url", "url must use http or https", nil)
	}
	if parsed.Hostname() == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "received", "validate url", "url must include a host", nil)
	}
	return parsed, nil
}

// Stream describes one fetchable format reported by the extractor. The
// selector reads Codec, BitrateKbps, AudioOnly and HasAudio; the remaining
// fields are what the extractor needs to fetch the bytes later.
type Stream struct {
	FormatID    string
	Codec       string
	Ext         string
	BitrateKbps float64
	AudioOnly   bool
	HasAudio    bool
	URL         string
	Headers     map[string]string
	SizeBytes   int64
}

// Metadata is the read-only result of resolving a URL.
type Metadata struct {
	Title           string
	DurationSeconds float64
	Uploader        string
	ViewCount       int64
	Streams         []Stream
}

// Artifact is the transcoded file inside its owning workspace. Path must
// never reach a caller.
type Artifact struct {
	Path        string
	DisplayName string
	MimeType    string
	Size        int64
}

// FileName is the name offered to the caller.
func (a Artifact) FileName() string {
	return a.DisplayName + ".mp3"
}
