package collect

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/seglo/internal/capture"
	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/detector"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/overlay"
	"github.com/ayusman/seglo/internal/prompt"
	"github.com/ayusman/seglo/internal/vector"
)

type fixture struct {
	session  *Session
	detector *detector.MockDetector
	display  *overlay.Headless
	out      *bytes.Buffer
	store    *dataset.Store
	labelMap string
	sleeps   []time.Duration
}

func newFixture(t *testing.T, samples int, answers string, keys ...int) *fixture {
	t.Helper()
	dir := t.TempDir()

	frames := capture.BlankFrames(1, 64, 48)
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})

	f := &fixture{
		detector: detector.NewMockDetector(),
		display:  overlay.NewHeadless(keys...),
		out:      &bytes.Buffer{},
		store:    dataset.NewStore(filepath.Join(dir, "data", "gestures")),
		labelMap: filepath.Join(dir, "labels", "label_map.json"),
	}
	f.detector.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	f.session = &Session{
		Camera:          capture.NewMockCamera(frames, true),
		Detector:        f.detector,
		Display:         f.display,
		Store:           f.store,
		LabelMap:        f.labelMap,
		Prompt:          prompt.New(strings.NewReader(answers), f.out),
		Out:             f.out,
		SamplesPerClass: samples,
		Countdown:       3 * time.Second,
		Sleep:           func(d time.Duration) { f.sleeps = append(f.sleeps, d) },
	}
	return f
}

func TestRunCompletes(t *testing.T) {
	f := newFixture(t, 4, "y\n", 'r')

	res, err := f.session.Run(context.Background(), "Hello", dataset.HandRight)
	require.NoError(t, err)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, "hello", res.Label)
	assert.True(t, res.NewLabel)
	assert.Equal(t, 0, res.Existing)
	assert.Equal(t, 4, res.Saved)
	assert.Equal(t, 4, res.Total)

	n, err := f.store.CountSamples("hello", dataset.HandRight)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	lm, err := labels.Load(f.labelMap)
	require.NoError(t, err)
	assert.Equal(t, labels.Map{"hello": 0}, lm)

	out := f.out.String()
	assert.Contains(t, out, "Existing samples: 0/4")
	assert.Contains(t, out, "Recording will start in 3 seconds...\n3\n2\n1\nRecording started.")
	for i := 1; i <= 4; i++ {
		assert.Contains(t, out, "[✓] Saved sample "+string(rune('0'+i)))
	}
	assert.Contains(t, out, "2 samples collected. Do you want to continue? (y/n): ")
	assert.Equal(t, 1, strings.Count(out, "Do you want to continue?"))
	assert.True(t, strings.HasSuffix(out, "Collection finished. Total samples: 4\n"))
	assert.Len(t, f.sleeps, 3)

	got, err := dataset.ReadSample(f.store.SamplePath("hello", dataset.HandRight, 0))
	require.NoError(t, err)
	want := vector.Encode([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	assert.Equal(t, want.Slice(), got)
}

func TestRunExitFromPreview(t *testing.T) {
	f := newFixture(t, 4, "", -1, 'q')

	res, err := f.session.Run(context.Background(), "hello", dataset.HandLeft)
	require.NoError(t, err)

	assert.Equal(t, Exited, res.Outcome)
	assert.Equal(t, 0, res.Total)
	assert.Contains(t, f.out.String(), "Exiting...")
	assert.NotContains(t, f.out.String(), "Saved sample")
	assert.Equal(t, 2, f.display.Shown())
}

func TestRunPausedAtHalfway(t *testing.T) {
	f := newFixture(t, 6, "n\n", 'r')

	res, err := f.session.Run(context.Background(), "thanks", dataset.HandBoth)
	require.NoError(t, err)

	assert.Equal(t, Paused, res.Outcome)
	assert.Equal(t, 3, res.Total)
	assert.Contains(t, f.out.String(), "Recording paused by user.")
	assert.Contains(t, f.out.String(), "Collection finished. Total samples: 3")
}

func TestRunInterrupted(t *testing.T) {
	f := newFixture(t, 10, "", 'r', -1, 'q')

	res, err := f.session.Run(context.Background(), "hello", dataset.HandRight)
	require.NoError(t, err)

	assert.Equal(t, Interrupted, res.Outcome)
	assert.Equal(t, 2, res.Total)
	assert.Contains(t, f.out.String(), "Recording interrupted by user.")
}

func TestRunSkipsFramesWithoutHands(t *testing.T) {
	f := newFixture(t, 2, "y\n", 'r')
	hand := []detector.HandLandmarks{detector.ThumbsUpLandmarks()}
	f.detector.SetSequence(nil, nil, hand, nil, hand)

	res, err := f.session.Run(context.Background(), "hello", dataset.HandRight)
	require.NoError(t, err)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 5, f.detector.Calls())
}

func TestRunKeepsExistingSamples(t *testing.T) {
	f := newFixture(t, 3, "y\n", 'r')

	existing := vector.Encode([]detector.HandLandmarks{detector.ThumbsUpLandmarks()})
	_, err := f.store.SaveSample("hello", dataset.HandRight, 1, existing)
	require.NoError(t, err)

	res, err := f.session.Run(context.Background(), "hello", dataset.HandRight)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 3, res.Total)
	assert.Contains(t, f.out.String(), "Existing samples: 1/3")

	kept, err := dataset.ReadSample(f.store.SamplePath("hello", dataset.HandRight, 1))
	require.NoError(t, err)
	assert.Equal(t, existing.Slice(), kept, "existing sample must not be overwritten")

	for _, idx := range []int{2, 3} {
		_, err := dataset.ReadSample(f.store.SamplePath("hello", dataset.HandRight, idx))
		assert.NoError(t, err, "sample %d", idx)
	}
}

func TestRunAlreadyComplete(t *testing.T) {
	f := newFixture(t, 1, "", 'r')
	_, err := f.store.SaveSample("hello", dataset.HandRight, 0, vector.Encode([]detector.HandLandmarks{detector.OpenPalmLandmarks()}))
	require.NoError(t, err)

	res, err := f.session.Run(context.Background(), "hello", dataset.HandRight)
	require.NoError(t, err)
	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 0, res.Saved)
}

func TestRunReusesLabelIndex(t *testing.T) {
	f := newFixture(t, 1, "", 'r')
	require.NoError(t, labels.Map{"a": 0, "b": 1}.Save(f.labelMap))

	res, err := f.session.Run(context.Background(), "B", dataset.HandLeft)
	require.NoError(t, err)
	assert.False(t, res.NewLabel)
	assert.Equal(t, 1, res.Index)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, 4, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.session.Run(ctx, "hello", dataset.HandLeft)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.Outcome)
}

func TestRunValidation(t *testing.T) {
	f := newFixture(t, 4, "")

	_, err := f.session.Run(context.Background(), "  ", dataset.HandLeft)
	assert.ErrorIs(t, err, ErrEmptyLabel)

	_, err = f.session.Run(context.Background(), "hello", dataset.Hand("middle"))
	assert.ErrorIs(t, err, dataset.ErrUnknownHandType)
}

func TestRunCameraExhausted(t *testing.T) {
	f := newFixture(t, 4, "")
	f.session.Camera = capture.NewMockCamera([]*gocv.Mat{}, false)

	_, err := f.session.Run(context.Background(), "hello", dataset.HandLeft)
	assert.ErrorIs(t, err, capture.ErrNoMoreFrames)
}

func TestAskTarget(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLabel string
		wantHand  dataset.Hand
		wantErr   error
	}{
		{"normalized", " Hello \nBoth\n", "hello", dataset.HandBoth, nil},
		{"empty name", "\nleft\n", "", "", ErrEmptyLabel},
		{"bad hand", "hello\nmiddle\n", "", "", dataset.ErrUnknownHandType},
		{"no input", "", "", "", prompt.ErrNoInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prompt.New(strings.NewReader(tt.input), &bytes.Buffer{})
			label, hand, err := AskTarget(p)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, label)
			assert.Equal(t, tt.wantHand, hand)
		})
	}
}
