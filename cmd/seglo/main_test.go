package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/config"
	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/nn"
	"github.com/ayusman/seglo/internal/scaler"
	"github.com/ayusman/seglo/internal/server"
	"github.com/ayusman/seglo/internal/store"
	"github.com/ayusman/seglo/internal/vector"
)

// writeConfig saves a configuration rooted in a temp dir and returns it
// with its path.
func writeConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = filepath.Join(root, "data", "gestures")
	cfg.Paths.LabelMap = filepath.Join(root, "labels", "label_map.json")
	cfg.Paths.ModelsDir = filepath.Join(root, "models")
	cfg.Paths.EvaluationDir = filepath.Join(root, "evaluation")
	cfg.Paths.Database = filepath.Join(root, "data", "seglo.db")
	cfg.Hooks.Dir = filepath.Join(root, "plugins")
	cfg.Logging.Level = "error"
	cfg.Training.Epochs = 15
	cfg.Training.BatchSize = 8
	cfg.Training.LearningRate = 0.01
	cfg.Training.Layers = []nn.LayerSpec{{Units: 16}}

	path := filepath.Join(root, "seglo.yaml")
	require.NoError(t, cfg.Save(path))
	return cfg, path
}

// addSamples records n well separated samples for hello_right and
// thanks_left and lists both in the label map.
func addSamples(t *testing.T, cfg *config.Config, n int) {
	t.Helper()
	require.NoError(t, labels.Map{"hello": 0, "thanks": 1}.Save(cfg.Paths.LabelMap))

	ds := dataset.NewStore(cfg.Paths.DataDir)
	for i := 0; i < n; i++ {
		var a, b vector.Vector
		for j := 0; j < vector.HandDim; j++ {
			jitter := float32(i%5) * 0.01
			a[j] = 0.2 + jitter
			b[j] = 0.8 - jitter
		}
		_, err := ds.SaveSample("hello", dataset.HandRight, i, a)
		require.NoError(t, err)
		_, err = ds.SaveSample("thanks", dataset.HandLeft, i, b)
		require.NoError(t, err)
	}
}

// run executes seglo with args and returns its stdout.
func run(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestInvalidConfig(t *testing.T) {
	cfg, path := writeConfig(t)
	cfg.Training.TestSplit = 1.5
	require.NoError(t, cfg.Save(path))

	_, err := run(t, path, "", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_split")
}

func TestMissingConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SEGLO_DATA_DIR", filepath.Join(dir, "data"))

	out, err := run(t, filepath.Join(dir, "absent.yaml"), "", "count")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCount(t *testing.T) {
	cfg, path := writeConfig(t)
	addSamples(t, cfg, 3)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.DataDir, "empty_both"), 0755))

	out, err := run(t, path, "", "count")
	require.NoError(t, err)
	assert.Equal(t, "empty_both: 0 samples\nhello_right: 3 samples\nthanks_left: 3 samples\n", out)
}

func TestDelete(t *testing.T) {
	cfg, path := writeConfig(t)
	addSamples(t, cfg, 2)
	dir := filepath.Join(cfg.Paths.DataDir, "hello_right")

	out, err := run(t, path, " Hello \nRIGHT\n", "delete")
	require.NoError(t, err)
	assert.Contains(t, out, "Enter the gesture name to delete: ")
	assert.Contains(t, out, "Deleted folder: "+dir)
	assert.NoDirExists(t, dir)

	out, err = run(t, path, "", "delete", "--label", "hello", "--hand", "right")
	require.NoError(t, err)
	assert.Contains(t, out, "Folder not found: "+dir)

	lm, err := labels.Load(cfg.Paths.LabelMap)
	require.NoError(t, err)
	assert.Equal(t, 0, lm["hello"], "label map is left unchanged")
}

func TestDeleteUnknownHand(t *testing.T) {
	_, path := writeConfig(t)

	_, err := run(t, path, "", "delete", "--label", "hello", "--hand", "feet")
	require.ErrorIs(t, err, dataset.ErrUnknownHandType)
}

func TestLabels(t *testing.T) {
	cfg, path := writeConfig(t)

	out, err := run(t, path, "", "labels")
	require.NoError(t, err)
	assert.Contains(t, out, "No labels yet")

	require.NoError(t, labels.Map{"thanks": 1, "hello": 0, "yes": 2}.Save(cfg.Paths.LabelMap))
	out, err = run(t, path, "", "labels")
	require.NoError(t, err)
	assert.Equal(t, "0: hello\n1: thanks\n2: yes\n", out)
}

func TestExportScaler(t *testing.T) {
	cfg, path := writeConfig(t)

	_, err := run(t, path, "", "export-scaler")
	require.Error(t, err, "no scaler has been trained")

	X := make([][]float32, 4)
	for i := range X {
		X[i] = make([]float32, vector.Dim)
		for j := range X[i] {
			X[i][j] = float32(i * j)
		}
	}
	sc, err := scaler.Fit(X)
	require.NoError(t, err)
	require.NoError(t, sc.Save(cfg.ScalerPath()))

	out, err := run(t, path, "", "export-scaler")
	require.NoError(t, err)
	assert.Contains(t, out, "Scaler stats saved to "+cfg.ScalerStatsPath())

	loaded, err := scaler.LoadStats(cfg.ScalerStatsPath())
	require.NoError(t, err)
	assert.Equal(t, sc.Stats(), loaded.Stats())
}

func TestRuns(t *testing.T) {
	cfg, path := writeConfig(t)

	out, err := run(t, path, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No training runs recorded.")

	st, err := store.New(cfg.Paths.Database)
	require.NoError(t, err)
	r := &store.Run{Classes: 2, Samples: 40}
	require.NoError(t, st.Runs().Create(r))
	require.NoError(t, st.Runs().Finish(r, store.RunCompleted, nil))
	require.NoError(t, st.Evaluations().Create(&store.Evaluation{RunID: r.ID, Accuracy: 0.95, MacroF1: 0.9}))
	require.NoError(t, st.Close())

	out, err = run(t, path, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, r.ID)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "acc=0.9500 f1=0.9000")
}

func TestPipeline(t *testing.T) {
	cfg, path := writeConfig(t)
	addSamples(t, cfg, 20)

	out, err := run(t, path, "", "train")
	require.NoError(t, err)
	assert.Contains(t, out, "Epoch 15/15")
	assert.Contains(t, out, "Training complete.")
	assert.FileExists(t, cfg.CheckpointPath())
	assert.FileExists(t, cfg.FinalModelPath())
	assert.FileExists(t, cfg.ScalerPath())

	out, err = run(t, path, "", "evaluate", "--heatmap=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Classification Report:")
	assert.Contains(t, out, "F1 Score (macro):")
	assert.Contains(t, out, "Accuracy: 1.0000")

	out, err = run(t, path, "", "convert", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "Mobile model saved to "+cfg.MobileModelPath())
	assert.Contains(t, out, "Input details:")
	assert.Contains(t, out, "Output shape: [1 2]")

	out, err = run(t, path, "", "check", cfg.FinalModelPath())
	require.NoError(t, err)
	assert.Contains(t, out, "(json)")

	out, err = run(t, path, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "acc=1.0000")
}

func TestConvertMissingModel(t *testing.T) {
	_, path := writeConfig(t)

	_, err := run(t, path, "", "convert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestDashboardURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080/"},
		{"0.0.0.0:9000", "http://localhost:9000/"},
		{"127.0.0.1:8080", "http://127.0.0.1:8080/"},
		{"[::]:8080", "http://localhost:8080/"},
		{"example", "http://example/"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, dashboardURL(tt.addr))
		})
	}
}

func TestOptionalClassifier(t *testing.T) {
	cfg, _ := writeConfig(t)
	a := &app{cfg: cfg, logger: zap.NewNop()}

	clf, model, err := a.optionalClassifier()
	require.NoError(t, err, "missing model")
	assert.Nil(t, clf)
	assert.Nil(t, model)

	m, err := nn.Build(vector.Dim, 2, []nn.LayerSpec{{Units: 4}}, 1)
	require.NoError(t, err)
	require.NoError(t, m.Save(cfg.FinalModelPath()))

	clf, model, err = a.optionalClassifier()
	require.NoError(t, err, "missing scaler")
	assert.Nil(t, clf)
	assert.Nil(t, model)

	X := [][]float32{make([]float32, vector.Dim), make([]float32, vector.Dim)}
	X[1][0] = 1
	sc, err := scaler.Fit(X)
	require.NoError(t, err)
	require.NoError(t, sc.Save(cfg.ScalerPath()))

	clf, model, err = a.optionalClassifier()
	require.NoError(t, err)
	require.NotNil(t, model)
	defer model.Close()
	assert.Equal(t, 2, clf.NumClasses())
}

func TestServerConfigMountsRuns(t *testing.T) {
	cfg, _ := writeConfig(t)
	a := &app{cfg: cfg, logger: zap.NewNop()}

	st, err := store.New(cfg.Paths.Database)
	require.NoError(t, err)
	defer st.Close()

	srv := server.New(a.serverConfig(st, nil))
	for _, path := range []string{"/api/runs", "/api/labels", "/api/samples"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
