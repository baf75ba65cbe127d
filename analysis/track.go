package analysis

import (
	"io"
	"time"
)

// Track is the metadata that travels with an analysis request. The analysis
// itself only reads ID and Album.
type Track struct {
	ID           string
	Title        string
	Artist       string
	Album        string
	AlbumArtist  string
	Genres       []string
	TaggedTitle  string
	TaggedArtist string
	TaggedAlbum  string
	Duration     time.Duration
}

// Source pairs a track with a way to read its encoded audio. Format names
// the pooled decoder, e.g. audio.DecoderWAV.
type Source struct {
	Track  Track
	Format string
	Open   func() (io.ReadSeekCloser, error)
}

// TrackResult is the outcome of analyzing one track. Err is set when any
// step failed; the results that did complete are still filled in.
type TrackResult struct {
	Track       Track
	Fingerprint FingerprintResult
	Loudness    *LoudnessResult
	Err         error
}
