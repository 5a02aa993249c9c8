package forecast

import (
	"math"
	"math/rand/v2"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
)

// gate holds the input weight, recurrent weight and bias of one gate.
type gate struct {
	wx, wh, b float64
}

func (g gate) pre(x, h float64) float64 {
	return g.wx*x + g.wh*h + g.b
}

// sequentialModel is a single-unit gated recurrent forecaster. It has no
// training phase: gate weights are small values drawn from the supplied
// generator and the output is the local window level adjusted by the
// hidden state.
type sequentialModel struct {
	seqLen int

	forget, input, output, candidate gate
	outWeight                        float64
}

func newSequentialModel(seqLen int, rng *rand.Rand) *sequentialModel {
	if seqLen < 1 {
		seqLen = 1
	}
	draw := func() float64 { return rng.Float64()*0.2 - 0.1 }
	newGate := func() gate { return gate{wx: draw(), wh: draw(), b: draw()} }
	return &sequentialModel{
		seqLen:    seqLen,
		forget:    newGate(),
		input:     newGate(),
		output:    newGate(),
		candidate: newGate(),
		outWeight: draw(),
	}
}

// step runs the cell over window and returns the final hidden state.
func (m *sequentialModel) step(window []float64) float64 {
	h, c := 0.0, 0.0
	for _, x := range window {
		f := sigmoid(m.forget.pre(x, h))
		i := sigmoid(m.input.pre(x, h))
		o := sigmoid(m.output.pre(x, h))
		g := math.Tanh(m.candidate.pre(x, h))
		c = f*c + i*g
		h = o * math.Tanh(c)
	}
	return h
}

// forecast rolls the model forward horizon steps over history, feeding
// each prediction back into the window.
func (m *sequentialModel) forecast(history []float64, horizon int) []float64 {
	if horizon <= 0 {
		return nil
	}
	norm, mean, std := stats.Normalize(history)

	n := m.seqLen
	if n > len(norm) {
		n = len(norm)
	}
	window := append([]float64(nil), norm[len(norm)-n:]...)

	out := make([]float64, horizon)
	for k := 0; k < horizon; k++ {
		pred := stats.Mean(window) + m.outWeight*m.step(window)
		pred = stats.SafeFloat(pred, 0)
		out[k] = pred
		if len(window) > 0 {
			window = append(window[1:], pred)
		}
	}
	return stats.Denormalize(out, mean, std)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
