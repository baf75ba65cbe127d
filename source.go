package trackcore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opd-ai/trackcore/analysis"
	"github.com/opd-ai/trackcore/audio"
)

var formatsByExtension = map[string]string{
	".wav":  audio.DecoderWAV,
	".wave": audio.DecoderWAV,
	".opus": audio.DecoderOpus,
}

// FormatForPath returns the decoder name for path's extension.
func FormatForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := formatsByExtension[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return format, nil
}

// SourceFromFile describes a file on disk as an analysis source. The track
// id is the cleaned absolute path and the title the base name.
func SourceFromFile(path string) (analysis.Source, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return analysis.Source{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return analysis.Source{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	title := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))

	return analysis.Source{
		Track:  analysis.Track{ID: abs, Title: title},
		Format: format,
		Open: func() (io.ReadSeekCloser, error) {
			return os.Open(abs)
		},
	}, nil
}
