package lstm

import (
	"math"
	"math/rand"
)

// lstmLayer is a single LSTM layer. Gate pre-activations are laid out as
// [input, forget, cell, output] blocks of hidden units each.
type lstmLayer struct {
	in, hidden int

	wx *param // [4*hidden][in]
	wh *param // [4*hidden][hidden]
	b  *param // [4*hidden]

	// returnSequences makes the layer emit every hidden state instead of
	// only the last one.
	returnSequences bool
}

// lstmStep caches the activations of one time step.
type lstmStep struct {
	x, hPrev, cPrev []float32
	i, f, g, o      []float32
	c, tc           []float32
}

func newLSTMLayer(name string, in, hidden int, returnSequences bool) *lstmLayer {
	return &lstmLayer{
		in:              in,
		hidden:          hidden,
		wx:              newParam(name+"/kernel", 4*hidden*in),
		wh:              newParam(name+"/recurrent_kernel", 4*hidden*hidden),
		b:               newParam(name+"/bias", 4*hidden),
		returnSequences: returnSequences,
	}
}

func (l *lstmLayer) init(rng *rand.Rand) {
	l.wx.glorot(rng, l.in, 4*l.hidden)
	l.wh.glorot(rng, l.hidden, 4*l.hidden)
	// forget gate starts open
	for j := l.hidden; j < 2*l.hidden; j++ {
		l.b.W[j] = 1
	}
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// forward runs the layer over xs ([T][in]) from zero state and returns the
// hidden state of every step together with the per-step caches.
func (l *lstmLayer) forward(xs [][]float32) ([][]float32, []lstmStep) {
	H := l.hidden
	hs := make([][]float32, len(xs))
	steps := make([]lstmStep, len(xs))

	h := make([]float32, H)
	c := make([]float32, H)
	z := make([]float32, 4*H)
	for t, x := range xs {
		for r := range 4 * H {
			sum := l.b.W[r]
			rowX := l.wx.W[r*l.in : (r+1)*l.in]
			for k, xk := range x {
				sum += rowX[k] * xk
			}
			rowH := l.wh.W[r*H : (r+1)*H]
			for k, hk := range h {
				sum += rowH[k] * hk
			}
			z[r] = sum
		}

		st := lstmStep{
			x:     x,
			hPrev: h,
			cPrev: c,
			i:     make([]float32, H),
			f:     make([]float32, H),
			g:     make([]float32, H),
			o:     make([]float32, H),
			c:     make([]float32, H),
			tc:    make([]float32, H),
		}
		hNext := make([]float32, H)
		for j := range H {
			st.i[j] = sigmoid(z[j])
			st.f[j] = sigmoid(z[H+j])
			st.g[j] = tanh(z[2*H+j])
			st.o[j] = sigmoid(z[3*H+j])
			st.c[j] = st.f[j]*c[j] + st.i[j]*st.g[j]
			st.tc[j] = tanh(st.c[j])
			hNext[j] = st.o[j] * st.tc[j]
		}
		steps[t] = st
		hs[t] = hNext
		h = hNext
		c = st.c
	}
	return hs, steps
}

// backward runs backpropagation through time. dhs[t] is dL/dh_t coming from
// above (nil rows are treated as zero). Gradients are accumulated into the
// layer parameters and dL/dx_t is returned for every step.
func (l *lstmLayer) backward(steps []lstmStep, dhs [][]float32) [][]float32 {
	H := l.hidden
	dxs := make([][]float32, len(steps))
	dhNext := make([]float32, H)
	dcNext := make([]float32, H)
	dz := make([]float32, 4*H)

	for t := len(steps) - 1; t >= 0; t-- {
		st := steps[t]
		for j := range H {
			dh := dhNext[j]
			if dhs[t] != nil {
				dh += dhs[t][j]
			}
			do := dh * st.tc[j]
			dc := dh*st.o[j]*(1-st.tc[j]*st.tc[j]) + dcNext[j]
			di := dc * st.g[j]
			dg := dc * st.i[j]
			df := dc * st.cPrev[j]
			dcNext[j] = dc * st.f[j]

			dz[j] = di * st.i[j] * (1 - st.i[j])
			dz[H+j] = df * st.f[j] * (1 - st.f[j])
			dz[2*H+j] = dg * (1 - st.g[j]*st.g[j])
			dz[3*H+j] = do * st.o[j] * (1 - st.o[j])
		}

		dx := make([]float32, l.in)
		for k := range dhNext {
			dhNext[k] = 0
		}
		for r := range 4 * H {
			g := dz[r]
			if g == 0 {
				continue
			}
			l.b.grad[r] += g
			rowX := l.wx.W[r*l.in : (r+1)*l.in]
			gX := l.wx.grad[r*l.in : (r+1)*l.in]
			for k := range l.in {
				gX[k] += g * st.x[k]
				dx[k] += rowX[k] * g
			}
			rowH := l.wh.W[r*H : (r+1)*H]
			gH := l.wh.grad[r*H : (r+1)*H]
			for k := range H {
				gH[k] += g * st.hPrev[k]
				dhNext[k] += rowH[k] * g
			}
		}
		dxs[t] = dx
	}
	return dxs
}
