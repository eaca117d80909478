package overlay

import (
	"sync"

	"gocv.io/x/gocv"
)

// Headless is a Display that discards frames and replays scripted keys.
// Keys are consumed one per Key call; after the script runs out Key
// returns Idle.
type Headless struct {
	mu    sync.Mutex
	keys  []int
	shown int
	idle  int
	// OnShow, when set, is called with every frame before it is dropped.
	OnShow func(img *gocv.Mat)
}

// NewHeadless returns a display that replays keys, then returns -1.
func NewHeadless(keys ...int) *Headless {
	return &Headless{keys: keys, idle: -1}
}

// Idle sets the key returned once the script is exhausted.
func (h *Headless) Idle(key int) *Headless {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.idle = key
	return h
}

// Push appends keys to the script.
func (h *Headless) Push(keys ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, keys...)
}

func (h *Headless) Show(img *gocv.Mat) {
	h.mu.Lock()
	h.shown++
	fn := h.OnShow
	h.mu.Unlock()
	if fn != nil {
		fn(img)
	}
}

func (h *Headless) Key(int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.keys) == 0 {
		return h.idle
	}
	k := h.keys[0]
	h.keys = h.keys[1:]
	return k
}

// Shown reports how many frames were displayed.
func (h *Headless) Shown() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shown
}

func (h *Headless) Close() error { return nil }
