package segment

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/logging"
)

// Classifier decides whether a batch of normalized samples contains speech.
type Classifier interface {
	IsSpeech(samples []float32) bool
}

// EnergyClassifier flags a batch as speech when its RMS reaches Threshold.
type EnergyClassifier struct {
	Threshold float32
}

func (e EnergyClassifier) IsSpeech(samples []float32) bool {
	return audio.RMS(samples) >= e.Threshold
}

// WebRTCClassifier runs WebRTC VAD over 10ms frames and requires the batch
// energy to reach a floor so very quiet hiss is not taken for speech.
// VAD errors fall back to the energy decision.
type WebRTCClassifier struct {
	vad        *webrtcvad.VAD
	sampleRate int
	energy     EnergyClassifier
	log        zerolog.Logger
	pending    []int16
}

func NewWebRTCClassifier(sampleRate, mode int, threshold float32) (*WebRTCClassifier, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}

	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	if err := vad.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}

	if !vad.ValidRateAndFrameLength(sampleRate, sampleRate/100) {
		return nil, fmt.Errorf("invalid sample rate %d for WebRTC VAD", sampleRate)
	}

	return &WebRTCClassifier{
		vad:        vad,
		sampleRate: sampleRate,
		energy:     EnergyClassifier{Threshold: threshold},
		log:        logging.WithComponent("vad"),
	}, nil
}

func (w *WebRTCClassifier) IsSpeech(samples []float32) bool {
	if !w.energy.IsSpeech(samples) {
		return false
	}

	frameSize := w.sampleRate / 100
	w.pending = append(w.pending, toInt16(samples)...)
	if len(w.pending) < frameSize {
		// not enough audio for one VAD frame yet
		return true
	}

	speech := false
	i := 0
	for ; i+frameSize <= len(w.pending); i += frameSize {
		active, err := w.vad.Process(w.sampleRate, int16ToBytes(w.pending[i:i+frameSize]))
		if err != nil {
			w.log.Warn().Err(err).Msg("VAD processing failed, using energy decision")
			w.pending = w.pending[:0]
			return true
		}
		if active {
			speech = true
		}
	}
	w.pending = append(w.pending[:0], w.pending[i:]...)
	return speech
}

func toInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// little-endian PCM as expected by webrtcvad
func int16ToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
