package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// ErrClassTooSmall is returned when a class cannot be represented in both splits.
var ErrClassTooSmall = errors.New("class has too few samples to split")

// StratifiedSplit shuffles samples with seed and holds out testFraction of
// them, keeping each class's share of the test set proportional to its
// share of the data. Every class keeps at least one training sample.
func StratifiedSplit(s *Samples, testFraction float64, seed uint64) (train, test *Samples, err error) {
	if s == nil || s.Len() == 0 {
		return nil, nil, ErrEmptyDataset
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v must be in (0, 1)", testFraction)
	}

	byClass := map[int][]int{}
	for i, y := range s.Y {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for c, idx := range byClass {
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("%w: class %d has %d sample(s), need at least 2", ErrClassTooSmall, c, len(idx))
		}
		classes = append(classes, c)
	}
	sort.Ints(classes)

	n := s.Len()
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < len(classes) || n-nTest < len(classes) {
		return nil, nil, fmt.Errorf("%w: %d samples cannot hold %d classes in a %.2f test split",
			ErrClassTooSmall, n, len(classes), testFraction)
	}

	alloc := allocate(classes, byClass, nTest, n)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var trainIdx, testIdx []int
	for _, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		testIdx = append(testIdx, idx[:alloc[c]]...)
		trainIdx = append(trainIdx, idx[alloc[c]:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	return s.subset(trainIdx), s.subset(testIdx), nil
}

// allocate distributes nTest test slots across classes by largest remainder.
func allocate(classes []int, byClass map[int][]int, nTest, n int) map[int]int {
	type share struct {
		class int
		frac  float64
	}

	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	given := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		whole := int(math.Floor(exact))
		alloc[c] = whole
		given += whole
		shares = append(shares, share{class: c, frac: exact - float64(whole)})
	}

	sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })
	for i := 0; given < nTest && i < len(shares); i++ {
		alloc[shares[i].class]++
		given++
	}

	for _, c := range classes {
		if alloc[c] > len(byClass[c])-1 {
			alloc[c] = len(byClass[c]) - 1
		}
	}
	return alloc
}

func (s *Samples) subset(idx []int) *Samples {
	out := &Samples{
		X: make([][]float32, len(idx)),
		Y: make([]int, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = s.X[j]
		out.Y[i] = s.Y[j]
	}
	return out
}
