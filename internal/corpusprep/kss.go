// Package corpusprep lays out third-party speech datasets as a studio master
// directory (texts/ and waves/ keyed by file base name).
package corpusprep

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	"golang.org/x/sync/errgroup"
)

// DefaultTranscript is the transcript file name shipped with the Korean
// Single Speaker (KSS) dataset.
const DefaultTranscript = "transcript.v.1.3.txt"

// Entry is one transcript line reduced to what the studio needs.
type Entry struct {
	Key  string
	Text string
}

// Options tunes PrepareKSS.
type Options struct {
	// Transcript is the transcript path, relative to the master directory
	// unless absolute. Empty means DefaultTranscript.
	Transcript string
	// Workers bounds concurrent file operations. Zero means half the CPUs.
	Workers int
	Logger  *slog.Logger
}

// Result counts the files PrepareKSS produced.
type Result struct {
	Waves int
	Texts int
}

// ParseTranscript reads KSS transcript lines of the form
// "1/1_0000.wav|original|expanded|decomposed|duration|english". The key is
// the wav base name and the text is the expanded (third) field. Blank lines
// are skipped.
func ParseTranscript(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		fields := strings.Split(raw, "|")
		if len(fields) < 3 {
			return nil, fmt.Errorf("transcript line %d: expected at least 3 fields, got %d", line, len(fields))
		}
		key := corpus.KeyFromPath(fields[0])
		if key == "" {
			return nil, fmt.Errorf("transcript line %d: empty file name", line)
		}
		entries = append(entries, Entry{Key: key, Text: fields[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return entries, nil
}

// PrepareKSS copies every <master>/*/*.wav into waves/ and writes one
// texts/<key>.txt per transcript line. The studio's own directories are
// not treated as dataset folders.
func PrepareKSS(ctx context.Context, masterDir string, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU()/2, 1)
	}
	transcript := opts.Transcript
	if transcript == "" {
		transcript = DefaultTranscript
	}
	if !filepath.IsAbs(transcript) {
		transcript = filepath.Join(masterDir, transcript)
	}

	waveDir := filepath.Join(masterDir, corpus.WavesDir)
	textDir := filepath.Join(masterDir, corpus.TextsDir)
	for _, dir := range []string{waveDir, textDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	f, err := os.Open(transcript)
	if err != nil {
		return Result{}, fmt.Errorf("opening transcript: %w", err)
	}
	entries, err := ParseTranscript(f)
	f.Close()
	if err != nil {
		return Result{}, err
	}

	waves, err := datasetWaves(masterDir)
	if err != nil {
		return Result{}, err
	}
	logger.Info("preparing kss corpus", "master_dir", masterDir, "waves", len(waves), "texts", len(entries), "workers", workers)

	var copied, written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, src := range waves {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := copyFile(src, filepath.Join(waveDir, filepath.Base(src))); err != nil {
				return fmt.Errorf("copying %s: %w", src, err)
			}
			copied.Add(1)
			return nil
		})
	}
	for _, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(textDir, e.Key+".txt")
			if err := os.WriteFile(path, []byte(e.Text), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			written.Add(1)
			return nil
		})
	}

	err = g.Wait()
	res := Result{Waves: int(copied.Load()), Texts: int(written.Load())}
	if err != nil {
		return res, err
	}

	logger.Info("kss corpus prepared", "waves", res.Waves, "texts", res.Texts)
	return res, nil
}

// datasetWaves globs <master>/*/*.wav, skipping the studio directories.
func datasetWaves(masterDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(masterDir, "*", "*.wav"))
	if err != nil {
		return nil, fmt.Errorf("listing dataset waves: %w", err)
	}
	skip := map[string]bool{
		corpus.WavesDir:    true,
		corpus.TextsDir:    true,
		corpus.RecordedDir: true,
	}
	var out []string
	for _, m := range matches {
		if skip[filepath.Base(filepath.Dir(m))] {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
