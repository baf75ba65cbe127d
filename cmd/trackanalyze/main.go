// Package main provides trackanalyze, which fingerprints audio files and
// measures their loudness, printing one JSON record per track.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/opd-ai/trackcore"
	"github.com/opd-ai/trackcore/analysis"
	"github.com/opd-ai/trackcore/store"
	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	storeDir     string
	noStore      bool
	logLevel     string
	logFormat    string
	slowTrack    time.Duration
	readyTimeout time.Duration
	progress     bool
	paths        []string
}

func parseCLIFlags(args []string) (*CLIConfig, error) {
	config := &CLIConfig{}
	fset := flag.NewFlagSet("trackanalyze", flag.ContinueOnError)

	fset.StringVar(&config.storeDir, "store", "", "Directory of the result store (default: in memory)")
	fset.BoolVar(&config.noStore, "no-store", false, "Do not persist results")
	fset.StringVar(&config.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	fset.StringVar(&config.logFormat, "log-format", "text", "Log format (text, json)")
	fset.DurationVar(&config.slowTrack, "slow-track", analysis.DefaultSlowTrackThreshold, "Warn about tracks taking longer than this")
	fset.DurationVar(&config.readyTimeout, "ready-timeout", 5*time.Second, "How long to wait for the audio worker")
	fset.BoolVar(&config.progress, "progress", true, "Show a progress bar on stderr")
	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), "Usage: %s [options] FILE|DIR...\n\nOptions:\n", fset.Name())
		fset.PrintDefaults()
	}

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	config.paths = fset.Args()
	if len(config.paths) == 0 {
		fset.Usage()
		return nil, fmt.Errorf("no input files")
	}
	return config, nil
}

func configureLogging(config *CLIConfig) error {
	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	switch strings.ToLower(config.logFormat) {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", config.logFormat)
	}
	return nil
}

// collectSources expands directories and keeps files with a known format.
func collectSources(paths []string) ([]analysis.Source, error) {
	var sources []analysis.Source
	add := func(path string, explicit bool) error {
		src, err := trackcore.SourceFromFile(path)
		if err != nil {
			if explicit {
				return err
			}
			return nil
		}
		sources = append(sources, src)
		return nil
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := add(p, true); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			return add(path, false)
		})
		if err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// setupSignalHandling cancels ctx on interrupt.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		logrus.WithFields(logrus.Fields{
			"function": "setupSignalHandling",
			"signal":   sig.String(),
		}).Warn("Interrupted, cancelling analysis")
		cancel()
	}()
}

func run(ctx context.Context, config *CLIConfig, out io.Writer) (failed int, err error) {
	sources, err := collectSources(config.paths)
	if err != nil {
		return 0, err
	}
	if len(sources) == 0 {
		return 0, fmt.Errorf("no supported audio files in %s", strings.Join(config.paths, ", "))
	}

	var bar *mpb.Bar
	var progress *mpb.Progress
	if config.progress {
		progress = mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
		bar = progress.AddBar(int64(len(sources)),
			mpb.PrependDecorators(
				decor.Name("Analyzing: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
		)
	}

	enc := json.NewEncoder(out)
	options := trackcore.NewOptions()
	options.StoreDir = config.storeDir
	options.PersistResults = !config.noStore
	options.SlowTrackThreshold = config.slowTrack
	options.ReadyTimeout = config.readyTimeout

	started := time.Now()
	options.OnResult = func(res analysis.TrackResult) {
		if res.Err != nil {
			failed++
		}
		if err := enc.Encode(store.RecordFromResult(res, time.Now())); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"error":    err.Error(),
			}).Error("Failed to write result")
		}
		if bar != nil {
			bar.EwmaIncrement(time.Since(started))
			started = time.Now()
		}
	}

	core, err := trackcore.New(options)
	if err != nil {
		return 0, err
	}
	defer core.Close()

	if _, err := core.AnalyzeBatch(ctx, sources); err != nil {
		return failed, err
	}
	if progress != nil {
		if ctx.Err() != nil {
			bar.Abort(false)
		}
		progress.Wait()
	}
	return failed, nil
}

func main() {
	config, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	if err := configureLogging(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	failed, err := run(ctx, config, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
	if failed > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"failed":   failed,
		}).Warn("Some tracks could not be analyzed")
		os.Exit(1)
	}
}
