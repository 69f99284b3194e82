// Package corpus indexes a recording corpus on disk. The master directory
// holds three subdirectories whose file base names are the join key:
//
//	master/
//	  texts/*.txt     prompt text (required, read-only)
//	  waves/*.wav     reference audio (optional, read-only)
//	  recorded/*.wav  user takes (created if absent, read-write)
//
// The index is built once by Open and afterwards mutated only through
// WriteRecorded and RemoveRecorded, which write through to disk.
package corpus

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultPageSize is the number of items per page.
const DefaultPageSize = 10

// Subdirectory names under the master directory.
const (
	TextsDir    = "texts"
	WavesDir    = "waves"
	RecordedDir = "recorded"
)

// Classification selects the key subset a listing operates over.
type Classification string

const (
	All        Classification = "all"
	Recorded   Classification = "recorded"
	Unrecorded Classification = "unrecorded"
)

// ParseClassification accepts ALL, RECORDED (or REC) and UNRECORDED (or
// UNREC) in any case.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return All, nil
	case "recorded", "rec":
		return Recorded, nil
	case "unrecorded", "unrec":
		return Unrecorded, nil
	}
	return "", &Error{Kind: KindInvalidClassification, Msg: fmt.Sprintf("invalid list type %q", s)}
}

// Source names one of the two optional audio files of a prompt.
type Source string

const (
	Reference Source = "wave"
	Take      Source = "recorded"
)

// ParseSource accepts "wave" (or "reference") and "recorded".
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wave", "waves", "reference":
		return Reference, nil
	case "recorded", "record", "take":
		return Take, nil
	}
	return "", &Error{Kind: KindInvalidClassification, Msg: fmt.Sprintf("invalid audio type %q", s)}
}

// Audio is an optional audio file attached to a prompt. Data is only
// populated when the caller asked for audio bytes.
type Audio struct {
	Path string
	Data []byte
}

// Item is the view of a single prompt.
type Item struct {
	Key       string
	Text      string
	Reference *Audio
	Recorded  *Audio
}

// Stats summarises the index.
type Stats struct {
	Total      int
	Recorded   int
	Unrecorded int
	References int
}

// Option configures an Index at construction.
type Option func(*Index)

// WithPageSize overrides DefaultPageSize. Values below 1 are ignored.
func WithPageSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.pageSize = n
		}
	}
}

// WithLogger sets the logger used for construction and mutation events.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// Index is the in-memory view of a corpus. It is safe for concurrent use.
type Index struct {
	root        string
	textDir     string
	waveDir     string
	recordedDir string
	pageSize    int
	logger      *slog.Logger

	mu          sync.RWMutex
	texts       map[string]string
	waves       map[string]string
	recorded    map[string]string
	orderedKeys []string
	recQueue    *mruQueue
	unrecQueue  *rankedSet
}

// Open scans root and builds the index. The waves and recorded
// directories are created when missing; a missing or unreadable texts
// directory is an error.
func Open(root string, opts ...Option) (*Index, error) {
	ix := &Index{
		root:        root,
		textDir:     filepath.Join(root, TextsDir),
		waveDir:     filepath.Join(root, WavesDir),
		recordedDir: filepath.Join(root, RecordedDir),
		pageSize:    DefaultPageSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("subsystem", "corpus")

	info, err := os.Stat(ix.textDir)
	if err != nil {
		return nil, fmt.Errorf("reading texts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("texts path %s is not a directory", ix.textDir)
	}

	for _, dir := range []string{ix.waveDir, ix.recordedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	ix.logger.Info("initializing corpus index", "root", root)

	if ix.texts, err = scanDir(ix.textDir, ".txt"); err != nil {
		return nil, err
	}
	if ix.waves, err = scanDir(ix.waveDir, ".wav"); err != nil {
		return nil, err
	}
	if ix.recorded, err = scanDir(ix.recordedDir, ".wav"); err != nil {
		return nil, err
	}

	ix.logger.Info("corpus files found",
		"texts", len(ix.texts),
		"waves", len(ix.waves),
		"recorded", len(ix.recorded),
	)

	ix.orderedKeys = make([]string, 0, len(ix.texts))
	for k := range ix.texts {
		ix.orderedKeys = append(ix.orderedKeys, k)
	}
	naturalSort(ix.orderedKeys)

	ix.recQueue = newMRUQueue()
	ix.unrecQueue = newRankedSet(ix.orderedKeys)
	for _, k := range ix.orderedKeys {
		if _, ok := ix.recorded[k]; ok {
			ix.recQueue.pushBack(k)
		} else {
			ix.unrecQueue.add(k)
		}
	}

	return ix, nil
}

// scanDir maps key to path for every file in dir with the given extension.
func scanDir(dir, ext string) (map[string]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			continue
		}
		out[KeyFromPath(p)] = p
	}
	return out, nil
}

// KeyFromPath derives a prompt key from a file path: the base name up to
// its first dot.
func KeyFromPath(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

// Root returns the master directory.
func (ix *Index) Root() string {
	return ix.root
}

// PageSize returns the fixed page size.
func (ix *Index) PageSize() int {
	return ix.pageSize
}

// TypeList returns a snapshot of the keys in classification c.
func (ix *Index) TypeList(c Classification) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n, err := ix.countLocked(c)
	if err != nil {
		return nil, err
	}
	return ix.sliceLocked(c, 0, n), nil
}

// Count returns the number of keys in classification c.
func (ix *Index) Count(c Classification) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.countLocked(c)
}

// PageCount returns the number of pages of classification c, counting a
// trailing partial page. An empty classification has one empty page.
func (ix *Index) PageCount(c Classification) (int, error) {
	n, err := ix.Count(c)
	if err != nil {
		return 0, err
	}
	return pageCount(n, ix.pageSize), nil
}

func pageCount(n, size int) int {
	return max((n+size-1)/size, 1)
}

// Page returns the items on page idx of classification c, without audio
// bytes.
func (ix *Index) Page(c Classification, idx int) ([]Item, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n, err := ix.countLocked(c)
	if err != nil {
		return nil, err
	}
	pages := pageCount(n, ix.pageSize)
	if idx < 0 || idx >= pages {
		return nil, &Error{
			Kind: KindOutOfRange,
			Msg:  fmt.Sprintf("page %d is out of range, %s has %d pages", idx, c, pages),
		}
	}

	keys := ix.sliceLocked(c, idx*ix.pageSize, (idx+1)*ix.pageSize)
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		item, err := ix.itemLocked(k, false)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Item returns the prompt for key. When includeAudio is set, the bytes of
// the reference and recorded audio files are loaded.
func (ix *Index) Item(key string, includeAudio bool) (Item, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.itemLocked(key, includeAudio)
}

// AudioPath returns the file path of one of the prompt's audio files.
func (ix *Index) AudioPath(key string, src Source) (string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if _, ok := ix.texts[key]; !ok {
		return "", newError(KindUnknownKey, key, "unknown key")
	}
	var (
		path string
		ok   bool
	)
	switch src {
	case Reference:
		path, ok = ix.waves[key]
	case Take:
		path, ok = ix.recorded[key]
	default:
		return "", &Error{Kind: KindInvalidClassification, Msg: fmt.Sprintf("invalid audio type %q", src)}
	}
	if !ok {
		return "", newError(KindNoAudio, key, fmt.Sprintf("no %s audio", src))
	}
	return path, nil
}

// Stats returns counts for the whole index.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	refs := 0
	for k := range ix.waves {
		if _, ok := ix.texts[k]; ok {
			refs++
		}
	}
	return Stats{
		Total:      len(ix.orderedKeys),
		Recorded:   ix.recQueue.len(),
		Unrecorded: ix.unrecQueue.len(),
		References: refs,
	}
}

// WriteRecorded stores data as the take for key, replacing any previous
// take. A key recorded for the first time moves to the front of the
// recorded queue. The bytes are written as-is.
func (ix *Index) WriteRecorded(key string, data []byte) (string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.texts[key]; !ok {
		return "", newError(KindUnknownKey, key, "unknown key")
	}

	path := filepath.Join(ix.recordedDir, key+".wav")
	if err := writeFileAtomic(path, data); err != nil {
		return "", wrapError(KindInternal, key, "writing recorded audio", err)
	}

	ix.recorded[key] = path
	if ix.unrecQueue.remove(key) {
		ix.recQueue.pushFront(key)
	}

	ix.logger.Info("recorded audio written", "key", key, "bytes", len(data))
	return path, nil
}

// RemoveRecorded deletes the take for key and returns the key to the
// unrecorded queue at its natural position.
func (ix *Index) RemoveRecorded(key string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	path, ok := ix.recorded[key]
	if !ok {
		return newError(KindUnknownKey, key, "no recorded audio")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return wrapError(KindInternal, key, "removing recorded audio", err)
	}

	delete(ix.recorded, key)
	if ix.recQueue.remove(key) {
		ix.unrecQueue.add(key)
	}

	ix.logger.Info("recorded audio removed", "key", key, "path", path)
	return nil
}

func (ix *Index) countLocked(c Classification) (int, error) {
	switch c {
	case All:
		return len(ix.orderedKeys), nil
	case Recorded:
		return ix.recQueue.len(), nil
	case Unrecorded:
		return ix.unrecQueue.len(), nil
	}
	return 0, &Error{Kind: KindInvalidClassification, Msg: fmt.Sprintf("invalid list type %q", c)}
}

// sliceLocked copies keys [from, to) of c. c must be valid.
func (ix *Index) sliceLocked(c Classification, from, to int) []string {
	switch c {
	case Recorded:
		return ix.recQueue.slice(from, to)
	case Unrecorded:
		return ix.unrecQueue.slice(from, to)
	}
	if to > len(ix.orderedKeys) {
		to = len(ix.orderedKeys)
	}
	if from >= to {
		return []string{}
	}
	out := make([]string, to-from)
	copy(out, ix.orderedKeys[from:to])
	return out
}

func (ix *Index) itemLocked(key string, includeAudio bool) (Item, error) {
	textPath, ok := ix.texts[key]
	if !ok {
		return Item{}, newError(KindUnknownKey, key, "unknown key")
	}

	raw, err := os.ReadFile(textPath)
	if err != nil {
		return Item{}, wrapError(KindInternal, key, "reading text", err)
	}
	item := Item{Key: key, Text: strings.TrimSpace(string(raw))}

	if p, ok := ix.waves[key]; ok {
		if item.Reference, err = loadAudio(p, includeAudio); err != nil {
			return Item{}, wrapError(KindInternal, key, "reading reference audio", err)
		}
	}
	if p, ok := ix.recorded[key]; ok {
		if item.Recorded, err = loadAudio(p, includeAudio); err != nil {
			return Item{}, wrapError(KindInternal, key, "reading recorded audio", err)
		}
	}
	return item, nil
}

func loadAudio(path string, withData bool) (*Audio, error) {
	a := &Audio{Path: path}
	if !withData {
		return a, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a.Data = data
	return a, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".take-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
