package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/store"
	"github.com/ayusman/seglo/internal/vector"
)

func TestAPI_DatasetWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	labelPath := filepath.Join(tmpDir, "label_map.json")
	if err := (labels.Map{"hello": 0}).Save(labelPath); err != nil {
		t.Fatal(err)
	}
	data := dataset.NewStore(filepath.Join(tmpDir, "data"))
	if _, err := data.SaveSample("hello", dataset.HandRight, 0, vector.Vector{0.5}); err != nil {
		t.Fatal(err)
	}
	run := &store.Run{Classes: 1}
	if err := s.Runs().Create(run); err != nil {
		t.Fatal(err)
	}

	srv := New(Config{Store: s, Data: data, LabelMap: labelPath})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Labels
	resp, err := client.Get(ts.URL + "/api/labels")
	if err != nil {
		t.Fatalf("GET /api/labels error = %v", err)
	}
	var lbls struct {
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	json.NewDecoder(resp.Body).Decode(&lbls)
	resp.Body.Close()
	if len(lbls.Labels) != 1 || lbls.Labels[0].Name != "hello" {
		t.Fatalf("labels = %+v", lbls)
	}

	// 2. Sample counts
	resp, _ = client.Get(ts.URL + "/api/samples")
	var counts struct {
		Total int `json:"total"`
	}
	json.NewDecoder(resp.Body).Decode(&counts)
	resp.Body.Close()
	if counts.Total != 1 {
		t.Fatalf("total = %d, want 1", counts.Total)
	}

	// 3. Run history
	resp, _ = client.Get(ts.URL + "/api/runs/" + run.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/runs/%s status = %d, want %d", run.ID, resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 4. Delete the class
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/samples/hello/right", nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 5. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/samples")
	json.NewDecoder(resp.Body).Decode(&counts)
	resp.Body.Close()
	if counts.Total != 0 {
		t.Fatalf("total after delete = %d, want 0", counts.Total)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
		Model  bool   `json:"model"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
	if health.Model {
		t.Error("model should be false without a classifier")
	}
}

func TestServer_ListenAndServeShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- New(Config{Hub: NewHub(nil), Frames: NewFrameBuffer()}).ListenAndServe(ctx, addr) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/api/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}
