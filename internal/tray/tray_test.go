package tray

import (
	"testing"

	"github.com/ayusman/seglo/internal/recognizer"
)

func TestTray_Toggle(t *testing.T) {
	tr := New()
	if !tr.IsEnabled() {
		t.Fatal("tray should start enabled")
	}

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("toggle callbacks = %v, want [false true]", got)
	}
	if !tr.IsEnabled() {
		t.Error("tray should be enabled after two toggles")
	}
}

func TestTray_Publish(t *testing.T) {
	tr := New()
	var _ recognizer.Sink = tr

	if tr.LastGesture() != "" {
		t.Errorf("LastGesture() = %q, want empty", tr.LastGesture())
	}
	tr.Publish(recognizer.Prediction{Label: "hello"})
	if tr.LastGesture() != "hello" {
		t.Errorf("LastGesture() = %q, want hello", tr.LastGesture())
	}
}

func TestTray_Dashboard(t *testing.T) {
	tr := New()
	tr.handleDashboard()

	called := false
	tr.OnDashboard(func() { called = true })
	tr.handleDashboard()
	if !called {
		t.Error("dashboard callback was not called")
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{toggleTitle(true), "● Enabled"},
		{toggleTitle(false), "○ Disabled"},
		{lastTitle(""), "Last: none"},
		{lastTitle("thanks"), "Last: thanks"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
