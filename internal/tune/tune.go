// Package tune searches for the local work size that dispatches a bound
// session fastest.
package tune

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/opt"
)

// infeasible is the cost of local sizes the device cannot run.
const infeasible = 1e12

// Options controls the search.
type Options struct {
	Iterations int
	Population int
	// Repeats is the number of timed dispatches per candidate.
	Repeats int
	Seed    int64
}

// Timing summarises the dispatch times of one candidate.
type Timing struct {
	Mean    time.Duration `json:"mean"`
	StdDev  time.Duration `json:"stddev"`
	Min     time.Duration `json:"min"`
	Samples int           `json:"samples"`
}

// Candidate is a measured local work size.
type Candidate struct {
	Local  []int  `json:"local"`
	Timing Timing `json:"timing"`
}

// Result reports the search. Best has been applied to the session.
type Result struct {
	Global   []int       `json:"global"`
	Baseline Candidate   `json:"baseline"`
	Best     Candidate   `json:"best"`
	Measured []Candidate `json:"measured"`
}

// Speedup is the baseline mean over the best mean.
func (r Result) Speedup() float64 {
	if r.Best.Timing.Mean <= 0 {
		return 1
	}
	return float64(r.Baseline.Timing.Mean) / float64(r.Best.Timing.Mean)
}

type tuner struct {
	s       *bind.Session
	repeats int
	maxWG   int64
	seen    map[string]*Candidate
	order   []string
	err     error
	log     *logrus.Entry
}

// Run measures the session's derived local size as a baseline, searches
// the divisors of each global dimension with mayfly and leaves the
// fastest feasible local size set on the session. The session must have
// its arguments bound and a global work size set.
func Run(s *bind.Session, opts Options, log *logrus.Entry) (Result, error) {
	global := s.GlobalWorkSize()
	if global == nil {
		return Result{}, &bind.Error{Kind: bind.KindWorkSizeNotSet, Op: "tune", Msg: "set the global work size first"}
	}
	if opts.Repeats < 1 {
		opts.Repeats = 1
	}
	maxWG, err := s.Context().MaxWorkGroupSize()
	if err != nil {
		return Result{}, err
	}

	t := &tuner{
		s:       s,
		repeats: opts.Repeats,
		maxWG:   maxWG,
		seen:    make(map[string]*Candidate),
		log:     log.WithField("kernel", s.Name()),
	}

	derived, err := s.AutoLocalWorkSize()
	if err != nil {
		return Result{}, err
	}
	if !t.feasible(derived) {
		for i := range derived {
			derived[i] = 1
		}
	}
	baseline, err := t.measure(derived)
	if err != nil {
		return Result{}, fmt.Errorf("measuring baseline %v: %w", derived, err)
	}

	choices := make([][]int, len(global))
	lower := make([]float64, len(global))
	upper := make([]float64, len(global))
	for i, g := range global {
		choices[i] = Divisors(g)
		upper[i] = float64(len(choices[i]))
	}

	decode := func(x []float64) []int {
		local := make([]int, len(x))
		for i, v := range x {
			idx := int(math.Floor(v))
			if idx >= len(choices[i]) {
				idx = len(choices[i]) - 1
			}
			local[i] = choices[i][idx]
		}
		return local
	}

	eval := func(x []float64) float64 {
		if t.err != nil {
			return infeasible
		}
		local := decode(x)
		if !t.feasible(local) {
			return infeasible
		}
		c, err := t.measure(local)
		if err != nil {
			t.err = err
			return infeasible
		}
		return c.Timing.Mean.Seconds()
	}

	if _, err := opt.NewMayfly(opts.Iterations, opts.Population, opts.Seed).Minimize(eval, lower, upper); err != nil {
		return Result{}, err
	}
	if t.err != nil {
		return Result{}, t.err
	}

	res := Result{Global: global, Baseline: *baseline, Best: *baseline}
	for _, key := range t.order {
		c := *t.seen[key]
		res.Measured = append(res.Measured, c)
		if c.Timing.Mean < res.Best.Timing.Mean {
			res.Best = c
		}
	}
	sort.Slice(res.Measured, func(i, j int) bool {
		return res.Measured[i].Timing.Mean < res.Measured[j].Timing.Mean
	})

	if err := s.SetLocalWorkSize(res.Best.Local...); err != nil {
		return Result{}, err
	}
	t.log.WithFields(logrus.Fields{
		"best":       res.Best.Local,
		"baseline":   res.Baseline.Local,
		"candidates": len(res.Measured),
		"speedup":    fmt.Sprintf("%.2fx", res.Speedup()),
	}).Info("tuned local work size")
	return res, nil
}

func (t *tuner) feasible(local []int) bool {
	n := int64(1)
	for _, l := range local {
		n *= int64(l)
	}
	return n <= t.maxWG
}

// measure times repeats dispatches with local, caching by local size.
func (t *tuner) measure(local []int) (*Candidate, error) {
	key := keyOf(local)
	if c, ok := t.seen[key]; ok {
		return c, nil
	}
	if err := t.s.SetLocalWorkSize(local...); err != nil {
		return nil, err
	}
	// Warm-up run, not timed.
	if err := t.s.Dispatch(); err != nil {
		return nil, err
	}

	samples := make([]float64, t.repeats)
	for i := range samples {
		start := time.Now()
		if err := t.s.Dispatch(); err != nil {
			return nil, err
		}
		samples[i] = float64(time.Since(start))
	}

	c := &Candidate{Local: append([]int(nil), local...), Timing: summarize(samples)}
	t.seen[key] = c
	t.order = append(t.order, key)
	t.log.WithFields(logrus.Fields{"local": local, "mean": c.Timing.Mean}).Debug("measured candidate")
	return c, nil
}

func summarize(samples []float64) Timing {
	mean, std := stat.MeanStdDev(samples, nil)
	if math.IsNaN(std) {
		std = 0
	}
	lo := samples[0]
	for _, v := range samples[1:] {
		lo = math.Min(lo, v)
	}
	return Timing{
		Mean:    time.Duration(mean),
		StdDev:  time.Duration(std),
		Min:     time.Duration(lo),
		Samples: len(samples),
	}
}

// Divisors returns the positive divisors of n in ascending order.
func Divisors(n int) []int {
	var small, large []int
	for d := 1; d*d <= n; d++ {
		if n%d != 0 {
			continue
		}
		small = append(small, d)
		if d != n/d {
			large = append(large, n/d)
		}
	}
	for i := len(large) - 1; i >= 0; i-- {
		small = append(small, large[i])
	}
	return small
}

func keyOf(local []int) string {
	parts := make([]string, len(local))
	for i, l := range local {
		parts[i] = fmt.Sprint(l)
	}
	return strings.Join(parts, "x")
}
