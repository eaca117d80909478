// Package dataset stores landmark samples as NumPy .npy files in per-class
// directories named <label>_<hand>.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/sbinet/npyio"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/vector"
)

// SampleExt is the file extension of every stored sample.
const SampleExt = ".npy"

var (
	// ErrNotFound is returned when a class directory does not exist.
	ErrNotFound = errors.New("class directory not found")
	// ErrUnknownHandType is returned for hand types other than left, right and both.
	ErrUnknownHandType = errors.New("unknown hand type")
	// ErrEmptyDataset is returned when no samples could be loaded.
	ErrEmptyDataset = errors.New("dataset is empty")
)

// Hand is the hand configuration a class was recorded with.
type Hand string

const (
	HandLeft  Hand = "left"
	HandRight Hand = "right"
	HandBoth  Hand = "both"
)

// Hands lists the accepted hand types.
var Hands = []Hand{HandLeft, HandRight, HandBoth}

// ParseHand normalizes and validates a hand type.
func ParseHand(s string) (Hand, error) {
	h := Hand(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Hands {
		if h == known {
			return h, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want left, right or both)", ErrUnknownHandType, s)
}

// ClassCount is the number of samples stored in one class directory.
type ClassCount struct {
	Dir     string `json:"dir"`
	Label   string `json:"label"`
	Hand    Hand   `json:"hand"`
	Samples int    `json:"samples"`
}

// Samples holds loaded vectors and their class indices.
type Samples struct {
	X [][]float32
	Y []int
	// Skipped lists files that were left out because they encode no hands.
	Skipped []string
}

// Len returns the number of samples.
func (s *Samples) Len() int { return len(s.Y) }

// Store reads and writes samples under a root directory.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

// ClassDir returns the directory for a label and hand.
func (s *Store) ClassDir(label string, hand Hand) string {
	return filepath.Join(s.root, className(labels.Normalize(label), hand))
}

// SamplePath returns the file path of a sample index.
func (s *Store) SamplePath(label string, hand Hand, index int) string {
	label = labels.Normalize(label)
	return filepath.Join(s.ClassDir(label, hand), fmt.Sprintf("%s_%04d%s", label, index, SampleExt))
}

// CountSamples returns the number of .npy files in the class directory.
// A missing directory counts as zero.
func (s *Store) CountSamples(label string, hand Hand) (int, error) {
	return countFiles(s.ClassDir(label, hand))
}

// NextSampleIndex returns the first index at or after start with no file on disk.
func (s *Store) NextSampleIndex(label string, hand Hand, start int) int {
	idx := start
	for {
		if _, err := os.Stat(s.SamplePath(label, hand, idx)); errors.Is(err, os.ErrNotExist) {
			return idx
		}
		idx++
	}
}

// SaveSample writes vec as the sample at index, refusing to overwrite.
// An all-zero vec is rejected with vector.ErrNoHands.
func (s *Store) SaveSample(label string, hand Hand, index int, vec vector.Vector) (string, error) {
	if vec.IsZero() {
		return "", fmt.Errorf("save sample %d of %s: %w", index, className(labels.Normalize(label), hand), vector.ErrNoHands)
	}
	dir := s.ClassDir(label, hand)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create class directory: %w", err)
	}

	path := s.SamplePath(label, hand, index)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create sample: %w", err)
	}

	if err := npyio.Write(f, vec.Slice()); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write sample %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close sample %s: %w", path, err)
	}
	return path, nil
}

// ReadSample loads one .npy file and checks its length.
func ReadSample(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []float32
	if err := npyio.Read(f, &values); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := vector.Validate(values); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// Counts lists every class directory with its sample count, sorted by name.
// Directories whose names do not follow <label>_<hand> are reported with an
// empty label.
func (s *Store) Counts() ([]ClassCount, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var counts []ClassCount
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := countFiles(filepath.Join(s.root, entry.Name()))
		if err != nil {
			return nil, err
		}
		label, hand, _ := splitClassName(entry.Name())
		counts = append(counts, ClassCount{
			Dir:     entry.Name(),
			Label:   label,
			Hand:    hand,
			Samples: n,
		})
	}

	sort.Slice(counts, func(i, j int) bool { return counts[i].Dir < counts[j].Dir })
	return counts, nil
}

// DeleteClass removes the class directory and all of its samples.
func (s *Store) DeleteClass(label string, hand Hand) (string, error) {
	dir := s.ClassDir(label, hand)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return dir, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return dir, fmt.Errorf("delete %s: %w", dir, err)
	}
	return dir, nil
}

// Load reads every sample whose class directory belongs to a label in m.
// Files are read concurrently; the result order is deterministic
// (label index, then directory, then file name). All-zero samples are left
// out and listed in Skipped.
func (s *Store) Load(ctx context.Context, m labels.Map) (*Samples, error) {
	type job struct {
		path  string
		class int
	}

	var jobs []job
	for _, name := range m.Names() {
		idx := m[name]
		for _, hand := range Hands {
			dir := filepath.Join(s.root, className(name, hand))
			files, err := listSamples(dir)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				jobs = append(jobs, job{path: f, class: idx})
			}
		}
	}

	if len(jobs) == 0 {
		return nil, ErrEmptyDataset
	}

	values := make([][]float32, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := ReadSample(j.path)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Samples{}
	for i, j := range jobs {
		if isZero(values[i]) {
			out.Skipped = append(out.Skipped, j.path)
			continue
		}
		out.X = append(out.X, values[i])
		out.Y = append(out.Y, j.class)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: %d samples encode no hands", ErrEmptyDataset, len(out.Skipped))
	}
	return out, nil
}

func isZero(values []float32) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}

func className(label string, hand Hand) string {
	return label + "_" + string(hand)
}

// splitClassName splits "<label>_<hand>" on its last underscore.
func splitClassName(dir string) (string, Hand, bool) {
	i := strings.LastIndex(dir, "_")
	if i <= 0 {
		return "", "", false
	}
	hand, err := ParseHand(dir[i+1:])
	if err != nil {
		return "", "", false
	}
	return dir[:i], hand, true
}

func listSamples(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read class directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != SampleExt {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func countFiles(dir string) (int, error) {
	files, err := listSamples(dir)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}
