package ytdlp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"audiograb/internal/media"
)

type infoDocument struct {
	Type      string         `json:"_type"`
	Title     string         `json:"title"`
	Duration  float64        `json:"duration"`
	Uploader  string         `json:"uploader"`
	Channel   string         `json:"channel"`
	ViewCount int64          `json:"view_count"`
	Formats   []formatRecord `json:"formats"`
}

type formatRecord struct {
	FormatID   string            `json:"format_id"`
	Ext        string            `json:"ext"`
	ACodec     string            `json:"acodec"`
	VCodec     string            `json:"vcodec"`
	ABR        float64           `json:"abr"`
	TBR        float64           `json:"tbr"`
	Protocol   string            `json:"protocol"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"http_headers"`
	Filesize   int64             `json:"filesize"`
	FormatNote string            `json:"format_note"`
}

var errMissingTitle = errors.New("metadata has no title")

// parseInfo decodes yt-dlp output. Formats that cannot be fetched with a
// plain HTTP request or carry no audio are dropped; the remaining order is
// kept.
func parseInfo(payload []byte) (media.Metadata, error) {
	var doc infoDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return media.Metadata{}, fmt.Errorf("decode yt-dlp json: %w", err)
	}
	if doc.Type == "playlist" {
		return media.Metadata{}, errors.New("url resolved to a playlist")
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		return media.Metadata{}, errMissingTitle
	}
	uploader := strings.TrimSpace(doc.Uploader)
	if uploader == "" {
		uploader = strings.TrimSpace(doc.Channel)
	}

	meta := media.Metadata{
		Title:           title,
		DurationSeconds: doc.Duration,
		Uploader:        uploader,
		ViewCount:       doc.ViewCount,
		Streams:         make([]media.Stream, 0, len(doc.Formats)),
	}
	for _, f := range doc.Formats {
		stream, ok := f.toStream()
		if !ok {
			continue
		}
		meta.Streams = append(meta.Streams, stream)
	}
	return meta, nil
}

func (f formatRecord) toStream() (media.Stream, bool) {
	switch strings.ToLower(strings.TrimSpace(f.Protocol)) {
	case "http", "https":
	default:
		return media.Stream{}, false
	}
	if strings.TrimSpace(f.URL) == "" {
		return media.Stream{}, false
	}
	acodec := strings.ToLower(strings.TrimSpace(f.ACodec))
	vcodec := strings.ToLower(strings.TrimSpace(f.VCodec))
	if acodec == "none" {
		return media.Stream{}, false
	}
	audioOnly := vcodec == "none"
	if acodec == "" && !audioOnly {
		// Unknown audio on a video format; yt-dlp reports these for
		// storyboards and silent renditions.
		return media.Stream{}, false
	}
	bitrate := f.ABR
	if bitrate <= 0 {
		bitrate = f.TBR
	}
	return media.Stream{
		FormatID:    f.FormatID,
		Codec:       acodec,
		Ext:         strings.ToLower(strings.TrimSpace(f.Ext)),
		BitrateKbps: bitrate,
		AudioOnly:   audioOnly,
		HasAudio:    true,
		URL:         f.URL,
		Headers:     f.Headers,
		SizeBytes:   f.Filesize,
	}, true
}
