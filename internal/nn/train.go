package nn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"
)

// FitOptions controls training.
type FitOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         uint64

	// OnEpoch is called after every epoch. Returning an error stops training.
	OnEpoch func(EpochStats) error
	// Checkpoint is called whenever validation accuracy improves on the
	// best seen so far.
	Checkpoint func(*Model, EpochStats) error
}

// DefaultFitOptions returns 50 epochs, batch 32, learning rate 0.001.
func DefaultFitOptions() FitOptions {
	return FitOptions{Epochs: 50, BatchSize: 32, LearningRate: 0.001, Seed: 42}
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch       int           `json:"epoch"`
	Loss        float64       `json:"loss"`
	Accuracy    float64       `json:"accuracy"`
	ValLoss     float64       `json:"val_loss"`
	ValAccuracy float64       `json:"val_accuracy"`
	Improved    bool          `json:"improved"`
	Duration    time.Duration `json:"duration"`
}

// History is the record of a training run.
type History struct {
	Epochs          []EpochStats `json:"epochs"`
	BestEpoch       int          `json:"best_epoch"`
	BestValAccuracy float64      `json:"best_val_accuracy"`
}

// Dataset is a feature matrix with integer class targets.
type Dataset struct {
	X [][]float32
	Y []int
}

// Fit trains the model on train, scoring val at the end of every epoch.
// Training accuracy is averaged over batches with dropout active.
func (m *Model) Fit(ctx context.Context, train, val Dataset, opts FitOptions) (*History, error) {
	if err := m.checkDataset(train); err != nil {
		return nil, fmt.Errorf("train set: %w", err)
	}
	if err := m.checkDataset(val); err != nil {
		return nil, fmt.Errorf("validation set: %w", err)
	}
	if opts.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", opts.LearningRate)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	adam := newAdam(m, opts.LearningRate)
	hist := &History{BestEpoch: -1, BestValAccuracy: math.Inf(-1)}

	order := make([]int, len(train.X))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		start := time.Now()
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		correct := 0
		for lo := 0; lo < len(order); lo += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			hi := min(lo+opts.BatchSize, len(order))
			loss, hits := m.step(train, order[lo:hi], rng, adam)
			lossSum += loss * float64(hi-lo)
			correct += hits
		}

		valLoss, valAcc, err := m.Evaluate(val.X, val.Y)
		if err != nil {
			return hist, err
		}

		stats := EpochStats{
			Epoch:       epoch,
			Loss:        lossSum / float64(len(order)),
			Accuracy:    float64(correct) / float64(len(order)),
			ValLoss:     valLoss,
			ValAccuracy: valAcc,
			Duration:    time.Since(start),
		}
		if valAcc > hist.BestValAccuracy {
			stats.Improved = true
			hist.BestEpoch = epoch
			hist.BestValAccuracy = valAcc
			if opts.Checkpoint != nil {
				if err := opts.Checkpoint(m, stats); err != nil {
					return hist, fmt.Errorf("checkpoint at epoch %d: %w", epoch, err)
				}
			}
		}
		hist.Epochs = append(hist.Epochs, stats)

		if opts.OnEpoch != nil {
			if err := opts.OnEpoch(stats); err != nil {
				return hist, err
			}
		}
	}

	return hist, nil
}

func (m *Model) checkDataset(d Dataset) error {
	if len(d.X) == 0 {
		return errors.New("no samples")
	}
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("have %d inputs and %d labels", len(d.X), len(d.Y))
	}
	n := m.NumClasses()
	for i, y := range d.Y {
		if y < 0 || y >= n {
			return fmt.Errorf("label %d at row %d out of range [0, %d)", y, i, n)
		}
	}
	return nil
}

// step runs forward and backward on one batch and applies an Adam update.
func (m *Model) step(d Dataset, idx []int, rng *rand.Rand, opt *adam) (float64, int) {
	rows := make([][]float32, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		rows[i] = d.X[j]
		ys[i] = d.Y[j]
	}
	x, _ := m.toMatrix(rows)

	caches := make([]layerCache, len(m.layers))
	probs := m.forward(x, true, rng, caches)
	loss, hits := crossEntropy(probs, ys)

	// Softmax with cross-entropy: dL/dz = (p - onehot) / batch.
	b := float64(len(ys))
	r, c := probs.Dims()
	grad := mat.NewDense(r, c, nil)
	grad.Copy(probs)
	for i, y := range ys {
		row := grad.RawRowView(i)
		row[y] -= 1
		for j := range row {
			row[j] /= b
		}
	}

	grads := make([]denseGrad, len(m.layers))
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		cache := caches[i]
		switch l.Kind {
		case KindDropout:
			if cache.mask != nil {
				g := mat.NewDense(r, l.Out, nil)
				g.MulElem(grad, cache.mask)
				grad = g
			}

		case KindDense:
			dz := grad
			if l.Activation == ReLU {
				dz = mat.NewDense(r, l.Out, nil)
				dz.Apply(func(i, j int, v float64) float64 {
					if cache.z.At(i, j) <= 0 {
						return 0
					}
					return v
				}, grad)
			}

			dw := mat.NewDense(l.In, l.Out, nil)
			dw.Mul(cache.input.T(), dz)
			db := make([]float64, l.Out)
			for row := 0; row < r; row++ {
				for j, v := range dz.RawRowView(row) {
					db[j] += v
				}
			}
			grads[i] = denseGrad{w: dw, b: db}

			if i > 0 {
				dx := mat.NewDense(r, l.In, nil)
				dx.Mul(dz, l.W.T())
				grad = dx
			}
		}
	}

	opt.update(m, grads)
	return loss, hits
}

type denseGrad struct {
	w *mat.Dense
	b []float64
}

// adam holds first and second moment estimates for every dense layer.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mw, vw                []*mat.Dense
	mb, vb                [][]float64
}

func newAdam(m *Model, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	a.mw = make([]*mat.Dense, len(m.layers))
	a.vw = make([]*mat.Dense, len(m.layers))
	a.mb = make([][]float64, len(m.layers))
	a.vb = make([][]float64, len(m.layers))
	for i, l := range m.layers {
		if l.Kind != KindDense {
			continue
		}
		a.mw[i] = mat.NewDense(l.In, l.Out, nil)
		a.vw[i] = mat.NewDense(l.In, l.Out, nil)
		a.mb[i] = make([]float64, l.Out)
		a.vb[i] = make([]float64, l.Out)
	}
	return a
}

func (a *adam) update(m *Model, grads []denseGrad) {
	a.t++
	lrT := a.lr * math.Sqrt(1-math.Pow(a.beta2, float64(a.t))) / (1 - math.Pow(a.beta1, float64(a.t)))

	for i, l := range m.layers {
		if l.Kind != KindDense || grads[i].w == nil {
			continue
		}
		for row := 0; row < l.In; row++ {
			w := l.W.RawRowView(row)
			g := grads[i].w.RawRowView(row)
			mr := a.mw[i].RawRowView(row)
			vr := a.vw[i].RawRowView(row)
			a.apply(w, g, mr, vr, lrT)
		}
		a.apply(l.B, grads[i].b, a.mb[i], a.vb[i], lrT)
	}
}

func (a *adam) apply(w, g, m, v []float64, lrT float64) {
	for j := range w {
		m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
		v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
		w[j] -= lrT * m[j] / (math.Sqrt(v[j]) + a.eps)
	}
}
