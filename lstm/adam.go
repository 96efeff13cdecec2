package lstm

import "math"

// clipGlobalNorm rescales all gradients so their joint L2 norm is at most
// maxNorm. It returns the norm before clipping.
func clipGlobalNorm(ps []*param, maxNorm float64) float64 {
	var sq float64
	for _, p := range ps {
		for _, g := range p.grad {
			sq += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sq)
	if maxNorm > 0 && norm > maxNorm {
		s := float32(maxNorm / norm)
		for _, p := range ps {
			for i := range p.grad {
				p.grad[i] *= s
			}
		}
	}
	return norm
}

// adamStep applies one Adam update with bias correction folded into the
// step size.
func (m *Model) adamStep() {
	cfg := m.Config
	m.step++
	b1 := cfg.Beta1
	b2 := cfg.Beta2
	t := float64(m.step)
	lrT := float32(cfg.LearningRate * math.Sqrt(1-math.Pow(b2, t)) / (1 - math.Pow(b1, t)))
	fb1, fb2 := float32(b1), float32(b2)
	eps := float32(cfg.Epsilon)

	for _, p := range m.params() {
		for i, g := range p.grad {
			p.m[i] = fb1*p.m[i] + (1-fb1)*g
			p.v[i] = fb2*p.v[i] + (1-fb2)*g*g
			p.W[i] -= lrT * p.m[i] / (float32(math.Sqrt(float64(p.v[i]))) + eps)
		}
	}
}
