package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/seglo/internal/detector"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/vector"
)

func testVector(seed float32) vector.Vector {
	v := vector.Encode([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	v[0] += seed
	return v
}

func fill(t *testing.T, s *Store, label string, hand Hand, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.SaveSample(label, hand, i, testVector(float32(i)))
		require.NoError(t, err)
	}
}

func TestParseHand(t *testing.T) {
	tests := []struct {
		in      string
		want    Hand
		wantErr bool
	}{
		{in: "left", want: HandLeft},
		{in: " Right ", want: HandRight},
		{in: "BOTH", want: HandBoth},
		{in: "feet", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHand(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownHandType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_SaveAndReadSample(t *testing.T) {
	s := NewStore(t.TempDir())

	path, err := s.SaveSample("Hello", HandRight, 7, testVector(0.25))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "hello_right", "hello_0007.npy"), path)

	values, err := ReadSample(path)
	require.NoError(t, err)
	require.Len(t, values, vector.Dim)
	assert.InDelta(t, float64(testVector(0.25)[0]), float64(values[0]), 1e-6)
}

func TestStore_SaveSampleRefusesOverwrite(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.SaveSample("a", HandLeft, 0, testVector(0))
	require.NoError(t, err)
	_, err = s.SaveSample("a", HandLeft, 0, testVector(1))
	assert.Error(t, err)
}

func TestStore_CountAndNextIndex(t *testing.T) {
	s := NewStore(t.TempDir())

	n, err := s.CountSamples("a", HandLeft)
	require.NoError(t, err)
	assert.Zero(t, n)

	fill(t, s, "a", HandLeft, 3)
	require.NoError(t, os.Remove(s.SamplePath("a", HandLeft, 1)))

	n, err = s.CountSamples("a", HandLeft)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// counting from the sample total would collide with sample 2
	assert.Equal(t, 3, s.NextSampleIndex("a", HandLeft, 2))
	assert.Equal(t, 1, s.NextSampleIndex("a", HandLeft, 0))
}

func TestStore_Counts(t *testing.T) {
	s := NewStore(t.TempDir())
	fill(t, s, "hello", HandRight, 2)
	fill(t, s, "hello", HandBoth, 1)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "scratch"), 0755))

	counts, err := s.Counts()
	require.NoError(t, err)
	require.Len(t, counts, 3)

	assert.Equal(t, ClassCount{Dir: "hello_both", Label: "hello", Hand: HandBoth, Samples: 1}, counts[0])
	assert.Equal(t, ClassCount{Dir: "hello_right", Label: "hello", Hand: HandRight, Samples: 2}, counts[1])
	assert.Equal(t, ClassCount{Dir: "scratch"}, counts[2])
}

func TestStore_CountsMissingRoot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))
	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestStore_DeleteClass(t *testing.T) {
	s := NewStore(t.TempDir())
	fill(t, s, "bye", HandLeft, 2)

	dir, err := s.DeleteClass("bye", HandLeft)
	require.NoError(t, err)
	assert.NoDirExists(t, dir)

	_, err = s.DeleteClass("bye", HandLeft)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Load(t *testing.T) {
	s := NewStore(t.TempDir())
	fill(t, s, "a", HandLeft, 2)
	fill(t, s, "a", HandRight, 1)
	fill(t, s, "b", HandBoth, 3)
	// belongs to label "a_b", not "a"
	fill(t, s, "a_b", HandLeft, 4)
	// not in the label map
	fill(t, s, "c", HandLeft, 5)

	got, err := s.Load(context.Background(), labels.Map{"a": 0, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, 6, got.Len())
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, got.Y)
	for _, x := range got.X {
		assert.Len(t, x, vector.Dim)
	}
}

func TestStore_SaveSampleRejectsNoHands(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.SaveSample("a", HandLeft, 0, vector.Vector{})
	require.ErrorIs(t, err, vector.ErrNoHands)
	assert.NoFileExists(t, s.SamplePath("a", HandLeft, 0))
}

func TestStore_LoadSkipsNoHands(t *testing.T) {
	s := NewStore(t.TempDir())
	fill(t, s, "a", HandLeft, 2)

	blank := s.SamplePath("a", HandLeft, 5)
	f, err := os.Create(blank)
	require.NoError(t, err)
	require.NoError(t, npyio.Write(f, make([]float32, vector.Dim)))
	require.NoError(t, f.Close())

	got, err := s.Load(context.Background(), labels.Map{"a": 0})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, []string{blank}, got.Skipped)
	for _, x := range got.X {
		assert.False(t, isZero(x))
	}

	require.NoError(t, os.Remove(s.SamplePath("a", HandLeft, 0)))
	require.NoError(t, os.Remove(s.SamplePath("a", HandLeft, 1)))
	_, err = s.Load(context.Background(), labels.Map{"a": 0})
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestStore_LoadEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load(context.Background(), labels.Map{"a": 0})
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestStore_LoadRejectsWrongLength(t *testing.T) {
	s := NewStore(t.TempDir())
	fill(t, s, "a", HandLeft, 1)

	bad := filepath.Join(s.ClassDir("a", HandLeft), "a_0001.npy")
	require.NoError(t, os.WriteFile(bad, []byte("not a numpy file"), 0644))

	_, err := s.Load(context.Background(), labels.Map{"a": 0})
	assert.Error(t, err)
}

func TestStratifiedSplit(t *testing.T) {
	s := &Samples{}
	for i := 0; i < 80; i++ {
		s.X = append(s.X, []float32{float32(i)})
		s.Y = append(s.Y, 0)
	}
	for i := 0; i < 20; i++ {
		s.X = append(s.X, []float32{float32(100 + i)})
		s.Y = append(s.Y, 1)
	}

	train, test, err := StratifiedSplit(s, 0.2, 42)
	require.NoError(t, err)

	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 20, test.Len())

	countClass := func(ss *Samples, c int) int {
		n := 0
		for _, y := range ss.Y {
			if y == c {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 16, countClass(test, 0))
	assert.Equal(t, 4, countClass(test, 1))

	seen := map[float32]bool{}
	for _, x := range append(train.X, test.X...) {
		assert.False(t, seen[x[0]], "sample %v appears twice", x[0])
		seen[x[0]] = true
	}
	assert.Len(t, seen, 100)

	// same seed, same split
	train2, test2, err := StratifiedSplit(s, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train.Y, train2.Y)
	assert.Equal(t, test.X, test2.X)
}

func TestStratifiedSplit_Errors(t *testing.T) {
	_, _, err := StratifiedSplit(&Samples{}, 0.2, 1)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	single := &Samples{X: [][]float32{{1}, {2}, {3}}, Y: []int{0, 0, 1}}
	_, _, err = StratifiedSplit(single, 0.5, 1)
	assert.ErrorIs(t, err, ErrClassTooSmall)

	ok := &Samples{X: [][]float32{{1}, {2}}, Y: []int{0, 0}}
	_, _, err = StratifiedSplit(ok, 1.5, 1)
	assert.Error(t, err)
}
