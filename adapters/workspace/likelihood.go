package workspace

import (
	"fmt"
	"math"

	"biastest/domain/model"
)

// likelihood is the extended negative log-likelihood of one dataset, binned
// when the workspace declares nll_bins.
type likelihood struct {
	w *Workspace
	l layout

	events [][]float64

	centers []float64
	counts  [][]float64

	offset        float64
	offsetApplied bool
}

func (w *Workspace) newLikelihood(ds *model.Dataset, opts model.NLLOptions) (*likelihood, error) {
	if ds == nil {
		return nil, fmt.Errorf("nil dataset")
	}
	nl := &likelihood{w: w, l: w.layout()}
	ncat := len(w.categories)

	if w.bins > 0 {
		width := (w.obsMax - w.obsMin) / float64(w.bins)
		nl.centers = make([]float64, w.bins)
		for b := range nl.centers {
			nl.centers[b] = w.obsMin + (float64(b)+0.5)*width
		}
		nl.counts = make([][]float64, ncat)
		for c := range nl.counts {
			nl.counts[c] = make([]float64, w.bins)
		}
	} else {
		nl.events = make([][]float64, ncat)
	}

	for _, e := range ds.Events {
		if e.Category < 0 || e.Category >= ncat {
			return nil, fmt.Errorf("event category %d out of range", e.Category)
		}
		if e.X < w.obsMin || e.X > w.obsMax {
			continue
		}
		if w.bins > 0 {
			b := int((e.X - w.obsMin) / (w.obsMax - w.obsMin) * float64(w.bins))
			if b == w.bins {
				b--
			}
			nl.counts[e.Category][b]++
		} else {
			nl.events[e.Category] = append(nl.events[e.Category], e.X)
		}
	}

	if opts.Offset {
		if v, ok := nl.eval(w.vector()); ok {
			nl.offset, nl.offsetApplied = v, true
		}
	}
	return nl, nil
}

// eval returns the NLL at x, ok=false when the point is outside the
// physical region.
func (nl *likelihood) eval(x []float64) (float64, bool) {
	var v float64
	for c := range nl.w.categories {
		st := nl.l.yields(nl.w, c, x)
		if !(st.width > 0) || !(st.sigma > 0) {
			return 0, false
		}
		var term float64
		var ok bool
		if nl.counts != nil {
			term, ok = nl.binnedTerm(c, st)
		} else {
			term, ok = nl.unbinnedTerm(c, st)
		}
		if !ok {
			return 0, false
		}
		v += term
	}
	for _, i := range nl.l.nuisances {
		v += 0.5 * x[i] * x[i]
	}
	v -= nl.offset
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (nl *likelihood) unbinnedTerm(c int, st catState) (float64, bool) {
	w := nl.w
	nu := st.nsig + st.nbkg
	if nu < 0 {
		return 0, false
	}
	norm := novosibirskIntegral(w.obsMin, w.obsMax, st.peak, st.width, st.tail)
	if !(norm > 0) {
		return 0, false
	}
	sig := newTruncatedNormal(st.mu, st.sigma, w.obsMin, w.obsMax)

	var sum float64
	for _, x := range nl.events[c] {
		d := st.nsig*sig.pdf(x) + st.nbkg*novosibirsk(x, st.peak, st.width, st.tail)/norm
		if !(d > 0) {
			return 0, false
		}
		sum += math.Log(d)
	}
	return nu - sum, true
}

func (nl *likelihood) binnedTerm(c int, st catState) (float64, bool) {
	bkg := make([]float64, len(nl.centers))
	sig := make([]float64, len(nl.centers))
	var bkgSum, sigSum float64
	tn := newTruncatedNormal(st.mu, st.sigma, nl.w.obsMin, nl.w.obsMax)
	for b, x := range nl.centers {
		bkg[b] = novosibirsk(x, st.peak, st.width, st.tail)
		sig[b] = tn.dist.Prob(x)
		bkgSum += bkg[b]
		sigSum += sig[b]
	}
	if !(bkgSum > 0) {
		return 0, false
	}

	var v float64
	for b, n := range nl.counts[c] {
		mu := st.nbkg * bkg[b] / bkgSum
		if sigSum > 0 {
			mu += st.nsig * sig[b] / sigSum
		}
		switch {
		case mu < 0:
			return 0, false
		case n > 0 && mu == 0:
			return 0, false
		case n > 0:
			v += mu - n*math.Log(mu)
		default:
			v += mu
		}
	}
	return v, true
}
