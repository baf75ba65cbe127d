package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/opd-ai/trackcore/analysis"
	"github.com/opd-ai/trackcore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTone(t *testing.T, path string, d time.Duration) {
	t.Helper()
	const rate = 16000
	frames := int(d.Seconds() * rate)
	data := make([]int, frames)
	for i := range data {
		data[i] = int(6000 * math.Sin(2*math.Pi*330*float64(i)/rate))
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestParseCLIFlags(t *testing.T) {
	config, err := parseCLIFlags([]string{"-no-store", "-log-level", "debug", "a.wav", "dir"})
	require.NoError(t, err)
	assert.True(t, config.noStore)
	assert.Equal(t, "debug", config.logLevel)
	assert.Equal(t, []string{"a.wav", "dir"}, config.paths)
	assert.Equal(t, analysis.DefaultSlowTrackThreshold, config.slowTrack)

	_, err = parseCLIFlags(nil)
	assert.Error(t, err)
}

func TestConfigureLogging(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"text", "info", "text", false},
		{"json", "warn", "JSON", false},
		{"bad level", "loud", "text", true},
		{"bad format", "info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := configureLogging(&CLIConfig{logLevel: tt.level, logFormat: tt.format})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCollectSources(t *testing.T) {
	dir := t.TempDir()
	writeTone(t, filepath.Join(dir, "one.wav"), time.Second)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	writeTone(t, filepath.Join(dir, "sub", "two.wav"), time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	sources, err := collectSources([]string{dir})
	require.NoError(t, err)
	require.Len(t, sources, 2)

	_, err = collectSources([]string{filepath.Join(dir, "notes.txt")})
	assert.Error(t, err)
	_, err = collectSources([]string{filepath.Join(dir, "missing.wav")})
	assert.Error(t, err)
}

func TestRunWritesOneRecordPerTrack(t *testing.T) {
	dir := t.TempDir()
	writeTone(t, filepath.Join(dir, "long.wav"), 8*time.Second)
	writeTone(t, filepath.Join(dir, "short.wav"), 2*time.Second)

	var out bytes.Buffer
	config := &CLIConfig{noStore: true, slowTrack: time.Minute, readyTimeout: 5 * time.Second, paths: []string{dir}}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed, err := run(ctx, config, &out)
	require.NoError(t, err)
	assert.Zero(t, failed)

	statuses := map[string]analysis.FingerprintStatus{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var rec store.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		statuses[rec.Title] = rec.Fingerprint.Status
		assert.NotNil(t, rec.Loudness)
	}
	assert.Equal(t, map[string]analysis.FingerprintStatus{
		"long":  analysis.StatusComputed,
		"short": analysis.StatusTooShort,
	}, statuses)
}
