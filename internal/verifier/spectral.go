package verifier

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/pkg/errors"
	resampling "github.com/tphakala/go-audio-resampling"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"voice_verification/entity"
)

// FbankConfig configures log mel filterbank extraction.
type FbankConfig struct {
	SampleRate  int     // analysis rate every input is resampled to
	NumMels     int     // mel channels
	FrameLength int     // samples per frame (25ms @ 16kHz)
	FrameShift  int     // hop in samples (10ms @ 16kHz)
	PreEmphasis float64 // first order high-pass coefficient
	DynRange    float64 // per frame floor, relative to the loudest band
	EnergyFloor float64 // absolute floor before log
}

func DefaultFbankConfig() FbankConfig {
	return FbankConfig{
		SampleRate:  16000,
		NumMels:     40,
		FrameLength: 400,
		FrameShift:  160,
		PreEmphasis: 0.97,
		DynRange:    1e-4,
		EnergyFloor: 1e-10,
	}
}

var errNoSpectralContent = errors.New("signal has no spectral content")

// Spectral is an in-process verifier comparing pooled log mel statistics by
// cosine similarity. It is a heuristic stand-in for a speaker embedding
// model, usable without the model service.
type Spectral struct {
	cfg       FbankConfig
	threshold float64
}

func NewSpectral(threshold float64) *Spectral {
	return &Spectral{cfg: DefaultFbankConfig(), threshold: threshold}
}

func (s *Spectral) Verify(ctx context.Context, a, b entity.MonoBuffer) (entity.VerificationResult, error) {
	_, span := otel.Tracer(traceName).Start(ctx, "Spectral.Verify")
	defer span.End()

	ea, err := s.Embed(a)
	if err != nil {
		return entity.VerificationResult{}, errors.Wrap(err, "first signal")
	}
	if err := ctx.Err(); err != nil {
		return entity.VerificationResult{}, err
	}
	eb, err := s.Embed(b)
	if err != nil {
		return entity.VerificationResult{}, errors.Wrap(err, "second signal")
	}

	score := cosine(ea, eb)
	if math.IsNaN(score) {
		return entity.VerificationResult{}, errNoSpectralContent
	}
	span.SetAttributes(attribute.Float64("score", score))

	return entity.VerificationResult{Score: score, IsSame: score >= s.threshold}, nil
}

// Embed turns a signal into a fixed size vector: the per mel mean (centred
// across mels, so overall loudness cancels) followed by the per mel spread.
func (s *Spectral) Embed(m entity.MonoBuffer) ([]float64, error) {
	if m.SampleRate <= 0 {
		return nil, errors.Errorf("invalid sample rate %d", m.SampleRate)
	}
	samples, err := resample(m.Samples, m.SampleRate, s.cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	frames := LogMel(samples, s.cfg)
	if len(frames) == 0 {
		return nil, errors.Errorf("signal too short: %d samples at %d Hz", len(m.Samples), m.SampleRate)
	}

	n := s.cfg.NumMels
	mean := make([]float64, n)
	std := make([]float64, n)
	for _, f := range frames {
		for i, v := range f {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(frames))
	}
	for _, f := range frames {
		for i, v := range f {
			d := v - mean[i]
			std[i] += d * d
		}
	}
	var centre float64
	for i := range std {
		std[i] = math.Sqrt(std[i] / float64(len(frames)))
		centre += mean[i]
	}
	centre /= float64(n)

	emb := make([]float64, 0, 2*n)
	for _, v := range mean {
		emb = append(emb, v-centre)
	}
	emb = append(emb, std...)
	return emb, nil
}

// LogMel computes [frames][mels] log mel energies of samples at cfg.SampleRate.
func LogMel(samples []float64, cfg FbankConfig) [][]float64 {
	if len(samples) < cfg.FrameLength {
		return nil
	}

	x := make([]float64, len(samples))
	copy(x, samples)
	if cfg.PreEmphasis > 0 {
		for i := len(x) - 1; i > 0; i-- {
			x[i] -= cfg.PreEmphasis * x[i-1]
		}
		x[0] *= 1 - cfg.PreEmphasis
	}

	numFrames := (len(x)-cfg.FrameLength)/cfg.FrameShift + 1
	fftSize := nextPow2(cfg.FrameLength)
	half := fftSize/2 + 1
	win := window.Hamming(cfg.FrameLength)
	bank := melFilterbank(cfg.NumMels, fftSize, cfg.SampleRate)

	out := make([][]float64, numFrames)
	frame := make([]float64, fftSize)
	power := make([]float64, half)
	for f := 0; f < numFrames; f++ {
		off := f * cfg.FrameShift
		for i := range frame {
			frame[i] = 0
		}
		for i := 0; i < cfg.FrameLength; i++ {
			frame[i] = x[off+i] * win[i]
		}

		spec := fft.FFTReal(frame)
		for k := 0; k < half; k++ {
			a := cmplx.Abs(spec[k])
			power[k] = a * a
		}

		energies := make([]float64, cfg.NumMels)
		var peak float64
		for m := range energies {
			var e float64
			for k, w := range bank[m] {
				e += w * power[k]
			}
			energies[m] = e
			if e > peak {
				peak = e
			}
		}
		floor := math.Max(peak*cfg.DynRange, cfg.EnergyFloor)
		for m, e := range energies {
			energies[m] = math.Log(math.Max(e, floor))
		}
		out[f] = energies
	}
	return out
}

func resample(samples []float64, from, to int) ([]float64, error) {
	if from == to {
		return samples, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create resampler")
	}
	out, err := r.Process(samples)
	if err != nil {
		return nil, errors.Wrap(err, "resample")
	}
	return out, nil
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterbank returns [numMels][fftSize/2+1] triangular weights.
func melFilterbank(numMels, fftSize, sampleRate int) [][]float64 {
	half := fftSize/2 + 1
	lo := hzToMel(0)
	hi := hzToMel(float64(sampleRate) / 2)

	bins := make([]int, numMels+2)
	for i := range bins {
		mel := lo + float64(i)*(hi-lo)/float64(numMels+1)
		bins[i] = int(math.Floor(melToHz(mel) * float64(fftSize) / float64(sampleRate)))
		if bins[i] >= half {
			bins[i] = half - 1
		}
	}

	fb := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		fb[m] = make([]float64, half)
		left, centre, right := bins[m], bins[m+1], bins[m+2]
		for k := left; k <= centre; k++ {
			if centre > left {
				fb[m][k] = float64(k-left) / float64(centre-left)
			}
		}
		for k := centre; k <= right; k++ {
			if right > centre {
				fb[m][k] = float64(right-k) / float64(right-centre)
			}
		}
	}
	return fb
}
