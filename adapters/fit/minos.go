package fit

import (
	"math"

	"biastest/domain/model"
)

// Minos computes asymmetric profile-likelihood errors for the named
// parameters. Unknown and constant names are skipped. The current point is
// left at the minimum.
func (m *Minimizer) Minos(names ...string) model.StageResult {
	r := m.beginStage(model.StageMinos)
	if !m.hasMin {
		m.fmin = m.eval(m.x)
		m.hasMin = true
	}
	xmin := append([]float64(nil), m.x...)
	fmin := m.fmin

	for _, name := range names {
		i := m.index(name)
		if i < 0 || m.params[i].Constant {
			continue
		}
		lo, loStatus := m.crossing(i, -1, xmin, fmin)
		hi, hiStatus := m.crossing(i, +1, xmin, fmin)
		r.Status = max(r.Status, loStatus, hiStatus)
		m.errLo[i], m.errHi[i] = lo, hi
		m.minos[i] = true
	}

	m.x = xmin
	m.fmin = fmin
	return m.endStage(r)
}

func (m *Minimizer) index(name string) int {
	for i, p := range m.params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// profile minimizes over every floating parameter except i, with i held at v.
func (m *Minimizer) profile(i int, v float64, xmin []float64) (float64, int) {
	start := append([]float64(nil), xmin...)
	start[i] = v
	var idx []int
	for _, j := range m.free() {
		if j != i {
			idx = append(idx, j)
		}
	}
	sub := m.minimizeSubset(idx, start)
	return sub.f, sub.profileStatus()
}

// crossing finds the signed distance from xmin[i] to the point in direction
// dir where the profiled objective rises by Up. A bound reached before the
// crossing yields the distance to that bound.
func (m *Minimizer) crossing(i int, dir float64, xmin []float64, fmin float64) (float64, int) {
	p := m.params[i]
	x0 := xmin[i]
	up := m.settings.Up
	sigma := m.errs[i]
	if !(sigma > 0) {
		sigma = p.step()
	}

	limit := math.Inf(int(dir))
	if dir < 0 && p.lowerBounded() {
		limit = p.Min
	}
	if dir > 0 && p.upperBounded() {
		limit = p.Max
	}

	// h is the signed square-root distance from the target, roughly linear in v.
	h := func(delta float64) float64 { return math.Sqrt(math.Max(delta, 0)) - math.Sqrt(up) }

	status := model.StatusOK
	note := func(s int) {
		if s == model.StatusCallLimit {
			status = model.StatusCallLimit
		} else if s != model.StatusOK && status == model.StatusOK {
			status = model.StatusProfileFailure
		}
	}

	a, ha := x0, h(0)
	b := x0 + dir*sigma
	var hb float64
	iter := 0
	for {
		if dir*(b-limit) >= 0 {
			b = limit
		}
		f, s := m.profile(i, b, xmin)
		note(s)
		iter++
		hb = h(f - fmin)
		if hb >= 0 {
			break
		}
		if b == limit {
			return b - x0, status
		}
		if iter >= m.settings.MinosMaxIter {
			return b - x0, max(status, model.StatusProfileFailure)
		}
		a, ha = b, hb
		b = x0 + 2*(b-x0)
	}

	// Illinois false position between a (below target) and b (above).
	const tol = 1e-3
	side := 0
	for ; iter < m.settings.MinosMaxIter; iter++ {
		c := b - hb*(b-a)/(hb-ha)
		if math.IsNaN(c) || dir*(c-a) <= 0 || dir*(c-b) >= 0 {
			c = (a + b) / 2
		}
		f, s := m.profile(i, c, xmin)
		note(s)
		hc := h(f - fmin)
		if math.Abs(hc) < tol*math.Sqrt(up) {
			return c - x0, status
		}
		if hc > 0 {
			b, hb = c, hc
			if side == 1 {
				ha /= 2
			}
			side = 1
		} else {
			a, ha = c, hc
			if side == -1 {
				hb /= 2
			}
			side = -1
		}
	}
	return (a+b)/2 - x0, max(status, model.StatusProfileFailure)
}
