package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/seglo/internal/capture"
	"github.com/ayusman/seglo/internal/collect"
	"github.com/ayusman/seglo/internal/config"
	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/detector"
	"github.com/ayusman/seglo/internal/evaluate"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/mobile"
	"github.com/ayusman/seglo/internal/models"
	"github.com/ayusman/seglo/internal/nn"
	"github.com/ayusman/seglo/internal/overlay"
	"github.com/ayusman/seglo/internal/prompt"
	"github.com/ayusman/seglo/internal/recognizer"
	"github.com/ayusman/seglo/internal/scaler"
	"github.com/ayusman/seglo/internal/server"
	"github.com/ayusman/seglo/internal/store"
	"github.com/ayusman/seglo/internal/train"
	"github.com/ayusman/seglo/internal/vector"
)

type recorder struct {
	mu     sync.Mutex
	labels []string
}

func (r *recorder) Publish(p recognizer.Prediction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, p.Label)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.labels...)
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = filepath.Join(root, "data", "gestures")
	cfg.Paths.LabelMap = filepath.Join(root, "labels", "label_map.json")
	cfg.Paths.ModelsDir = filepath.Join(root, "models")
	cfg.Paths.EvaluationDir = filepath.Join(root, "evaluation")
	cfg.Paths.Database = filepath.Join(root, "data", "seglo.db")
	cfg.Collection.SamplesPerClass = 20
	cfg.Training.Epochs = 40
	cfg.Training.BatchSize = 8
	cfg.Training.LearningRate = 0.01
	cfg.Training.Layers = []nn.LayerSpec{{Units: 32, Dropout: 0.1}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

// collectGesture records cfg.Collection.SamplesPerClass frames of hand.
func collectGesture(t *testing.T, cfg *config.Config, name string, hand dataset.Hand, lm detector.HandLandmarks) *collect.Result {
	t.Helper()
	frames := capture.BlankFrames(1, 64, 48)
	t.Cleanup(func() { frames[0].Close() })

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{lm})

	var out bytes.Buffer
	session := &collect.Session{
		Camera:          capture.NewMockCamera(frames, true),
		Detector:        det,
		Display:         overlay.NewHeadless('r'),
		Store:           dataset.NewStore(cfg.Paths.DataDir),
		LabelMap:        cfg.Paths.LabelMap,
		Prompt:          prompt.New(strings.NewReader("y\n"), &out),
		Out:             &out,
		SamplesPerClass: cfg.Collection.SamplesPerClass,
		Countdown:       time.Second,
		Sleep:           func(time.Duration) {},
	}
	res, err := session.Run(context.Background(), name, hand)
	if err != nil {
		t.Fatalf("collect %s: %v", name, err)
	}
	if res.Outcome != collect.Completed {
		t.Fatalf("collect %s outcome = %s, output:\n%s", name, res.Outcome, out.String())
	}
	return res
}

func TestE2E_CompletePipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	cfg := newConfig(t)
	st, err := store.New(cfg.Paths.Database)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	t.Run("Collect", func(t *testing.T) {
		hello := collectGesture(t, cfg, "Hello", dataset.HandRight, detector.OpenPalmLandmarks())
		thanks := collectGesture(t, cfg, "thanks", dataset.HandRight, detector.ThumbsUpLandmarks())
		if hello.Index != 0 || thanks.Index != 1 {
			t.Errorf("label indices = %d, %d, want 0, 1", hello.Index, thanks.Index)
		}
		for _, res := range []*collect.Result{hello, thanks} {
			if err := st.Sessions().Create(&store.Session{
				Label: res.Label, Hand: string(res.Hand), LabelIndex: res.Index,
				Saved: res.Saved, Total: res.Total, Outcome: string(res.Outcome),
			}); err != nil {
				t.Fatalf("record session: %v", err)
			}
		}

		counts, err := dataset.NewStore(cfg.Paths.DataDir).Counts()
		if err != nil {
			t.Fatalf("Counts() error = %v", err)
		}
		if len(counts) != 2 || counts[0].Samples != 20 || counts[1].Samples != 20 {
			t.Errorf("counts = %+v", counts)
		}
	})

	t.Run("Train", func(t *testing.T) {
		res, err := (&train.Trainer{Config: cfg, Runs: st.Runs()}).Run(context.Background())
		if err != nil {
			t.Fatalf("train: %v", err)
		}
		if res.Run.Status != store.RunCompleted {
			t.Errorf("run status = %s", res.Run.Status)
		}
		if res.Run.TestSamples != 8 {
			t.Errorf("test samples = %d, want 8", res.Run.TestSamples)
		}
	})

	t.Run("ConvertAndCheck", func(t *testing.T) {
		q, err := mobile.ConvertFile(cfg.FinalModelPath(), cfg.MobileModelPath())
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if q.InputDim() != vector.Dim || q.NumClasses() != 2 {
			t.Errorf("quantized model is %d -> %d", q.InputDim(), q.NumClasses())
		}

		m, err := models.Open(cfg.MobileModelPath())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer m.Close()
		report, err := models.Check(m, 42)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if len(report.Output) != 2 {
			t.Errorf("check output = %v", report.Output)
		}
	})

	t.Run("Evaluate", func(t *testing.T) {
		var out bytes.Buffer
		e := &evaluate.Evaluator{Config: cfg, Store: st, Out: &out}
		res, err := e.Run(context.Background(), cfg.MobileModelPath())
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if res.Report.Accuracy < 0.99 {
			t.Errorf("accuracy = %.4f\n%s", res.Report.Accuracy, out.String())
		}
		if res.Evaluation == nil || res.Evaluation.RunID == "" {
			t.Error("evaluation should be recorded against the training run")
		}
	})

	clf := loadClassifier(t, cfg)

	t.Run("Realtime", func(t *testing.T) {
		frames := capture.BlankFrames(1, 64, 48)
		defer frames[0].Close()

		det := detector.NewMockDetector()
		det.SetSequence(
			[]detector.HandLandmarks{detector.OpenPalmLandmarks()},
			[]detector.HandLandmarks{detector.OpenPalmLandmarks()},
			[]detector.HandLandmarks{detector.OpenPalmLandmarks()},
			[]detector.HandLandmarks{detector.OpenPalmLandmarks()},
			nil,
			[]detector.HandLandmarks{detector.ThumbsUpLandmarks()},
			[]detector.HandLandmarks{detector.ThumbsUpLandmarks()},
			[]detector.HandLandmarks{detector.ThumbsUpLandmarks()},
		)

		sink := &recorder{}
		keys := []int{-1, -1, -1, -1, -1, -1, -1, 'q'}
		r := recognizer.New(recognizer.Config{
			Camera:     capture.NewMockCamera(frames, true),
			Detector:   det,
			Classifier: clf,
			Stabilizer: recognizer.NewStabilizer(0.6, 3),
			Display:    overlay.NewHeadless(keys...),
			Sinks:      []recognizer.Sink{sink},
		})
		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		got := strings.Join(sink.got(), ",")
		if got != "hello,thanks" {
			t.Errorf("stable predictions = %s, want hello,thanks", got)
		}
	})

	t.Run("API", func(t *testing.T) {
		srv := server.New(server.Config{
			LabelMap:   cfg.Paths.LabelMap,
			Data:       dataset.NewStore(cfg.Paths.DataDir),
			Store:      st,
			Classifier: clf,
		})
		ts := httptest.NewServer(srv)
		defer ts.Close()

		v := vector.Encode([]detector.HandLandmarks{detector.ThumbsUpLandmarks()})
		body, _ := json.Marshal(map[string]any{"vector": v.Slice()})
		resp, err := ts.Client().Post(ts.URL+"/api/predict", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("predict status = %d", resp.StatusCode)
		}
		var p recognizer.Prediction
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			t.Fatalf("decode prediction: %v", err)
		}
		if p.Label != "thanks" || p.Index != 1 {
			t.Errorf("prediction = %+v", p)
		}

		resp, err = ts.Client().Get(ts.URL + "/api/runs")
		if err != nil {
			t.Fatalf("runs: %v", err)
		}
		defer resp.Body.Close()
		var runs struct {
			Runs []struct {
				Status      string            `json:"status"`
				Evaluations []json.RawMessage `json:"evaluations"`
			} `json:"runs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
			t.Fatalf("decode runs: %v", err)
		}
		if len(runs.Runs) != 1 || runs.Runs[0].Status != "completed" || len(runs.Runs[0].Evaluations) != 1 {
			t.Errorf("runs = %+v", runs)
		}
	})

	t.Run("History", func(t *testing.T) {
		total, err := st.Sessions().SavedTotal("hello")
		if err != nil {
			t.Fatalf("SavedTotal() error = %v", err)
		}
		if total != 20 {
			t.Errorf("saved total = %d, want 20", total)
		}
	})
}

func loadClassifier(t *testing.T, cfg *config.Config) *recognizer.Classifier {
	t.Helper()
	m, err := models.Open(cfg.MobileModelPath())
	if err != nil {
		t.Fatalf("open model: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	sc, err := scaler.Load(cfg.ScalerPath())
	if err != nil {
		t.Fatalf("load scaler: %v", err)
	}
	lm, err := labels.Load(cfg.Paths.LabelMap)
	if err != nil {
		t.Fatalf("load labels: %v", err)
	}
	clf, err := recognizer.NewClassifier(m, sc, lm)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	return clf
}
