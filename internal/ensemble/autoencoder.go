package ensemble

import "fmt"

// Layer is one dense layer: out = act(W*x + B). Weights[i] holds the input
// weights of output unit i.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

// Autoencoder is a fitted reconstruction network. LatentLayer indexes the
// layer whose output is the compressed representation carried into decisions.
type Autoencoder struct {
	Layers      []Layer `json:"layers"`
	LatentLayer int     `json:"latent_layer"`
}

func (l *Layer) forward(x []float64) []float64 {
	out := make([]float64, len(l.Weights))
	for i, w := range l.Weights {
		s := l.Bias[i]
		for j, wj := range w {
			s += wj * x[j]
		}
		if l.Activation == "relu" && s < 0 {
			s = 0
		}
		out[i] = s
	}
	return out
}

// Reconstruct runs the full forward pass and returns the latent vector and
// the mean squared reconstruction error against the input.
func (a *Autoencoder) Reconstruct(x []float64) (latent []float64, reconErr float64) {
	h := x
	for i := range a.Layers {
		h = a.Layers[i].forward(h)
		if i == a.LatentLayer {
			latent = make([]float64, len(h))
			copy(latent, h)
		}
	}
	var sum float64
	for i := range x {
		d := x[i] - h[i]
		sum += d * d
	}
	return latent, sum / float64(len(x))
}

func (a *Autoencoder) validate(nFeatures int) error {
	if len(a.Layers) == 0 {
		return fmt.Errorf("autoencoder has no layers")
	}
	if a.LatentLayer < 0 || a.LatentLayer >= len(a.Layers) {
		return fmt.Errorf("autoencoder latent layer %d out of range", a.LatentLayer)
	}
	in := nFeatures
	for i, l := range a.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return fmt.Errorf("autoencoder layer %d: weight/bias shape mismatch", i)
		}
		for u, w := range l.Weights {
			if len(w) != in {
				return fmt.Errorf("autoencoder layer %d unit %d: expected %d inputs, got %d", i, u, in, len(w))
			}
		}
		if l.Activation != "relu" && l.Activation != "linear" {
			return fmt.Errorf("autoencoder layer %d: unknown activation %q", i, l.Activation)
		}
		in = len(l.Weights)
	}
	if in != nFeatures {
		return fmt.Errorf("autoencoder output width %d does not match input %d", in, nFeatures)
	}
	return nil
}
