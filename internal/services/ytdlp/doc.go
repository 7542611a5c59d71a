// Package ytdlp adapts the yt-dlp extractor to the job pipeline.
//
// Resolve asks yt-dlp for a single JSON document describing a URL and turns
// it into media.Metadata without downloading anything. Open fetches the raw
// bytes of one of the formats that document listed. Both calls honour the
// caller's context and the client's own resolve timeout.
package ytdlp
