package audio

import (
	"audiograb/internal/media"
	"audiograb/internal/services"
)

// Selection is the chosen stream plus the bitrate the transcoder targets.
type Selection struct {
	Stream        media.Stream
	Index         int
	TargetBitrate int
	// Fallback is true when no stream fit under the target.
	Fallback bool
}

// Select picks the audio-only stream whose bitrate is closest to, without
// exceeding, the tier's target. When none fits it falls back to the
// highest-bitrate audio-only stream. Muxed streams carrying audio are only
// considered when no audio-only stream exists. Ties go to the earlier stream.
func Select(streams []media.Stream, tier media.Tier) (Selection, error) {
	target := tier.TargetBitrate()

	pool := candidates(streams, true)
	if len(pool) == 0 {
		pool = candidates(streams, false)
	}
	if len(pool) == 0 {
		return Selection{}, services.Wrap(services.ErrNoSuitableStream, "selecting", "select format", "no audio track available", nil)
	}

	best, fits := -1, false
	for _, idx := range pool {
		rate := streams[idx].BitrateKbps
		if rate <= 0 || rate > float64(target) {
			continue
		}
		if !fits || rate > streams[best].BitrateKbps {
			best, fits = idx, true
		}
	}
	if fits {
		return Selection{Stream: streams[best], Index: best, TargetBitrate: target}, nil
	}

	best = pool[0]
	for _, idx := range pool[1:] {
		if streams[idx].BitrateKbps > streams[best].BitrateKbps {
			best = idx
		}
	}
	return Selection{Stream: streams[best], Index: best, TargetBitrate: target, Fallback: true}, nil
}

func candidates(streams []media.Stream, audioOnly bool) []int {
	out := make([]int, 0, len(streams))
	for i, s := range streams {
		if !s.HasAudio && !s.AudioOnly {
			continue
		}
		if s.AudioOnly != audioOnly {
			continue
		}
		out = append(out, i)
	}
	return out
}
