package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// WAV format tags.
const (
	WAVFormatPCM   = 1
	WAVFormatFloat = 3
)

// WAVHeaderSize is the size of the canonical 44-byte RIFF header.
const WAVHeaderSize = 44

var ErrInvalidWAV = errors.New("invalid WAV data")

// WAVHeader describes a mono or stereo canonical WAV file.
type WAVHeader struct {
	FormatTag     uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataSize      uint32
}

// Bytes encodes the header in its 44-byte RIFF form.
func (h WAVHeader) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(WAVHeaderSize)

	blockAlign := h.Channels * h.BitsPerSample / 8
	byteRate := h.SampleRate * uint32(blockAlign)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+h.DataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, h.FormatTag)
	binary.Write(&buf, binary.LittleEndian, h.Channels)
	binary.Write(&buf, binary.LittleEndian, h.SampleRate)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, h.BitsPerSample)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, h.DataSize)

	return buf.Bytes()
}

// FloatWAVHeader returns the header of a mono IEEE float32 file holding n samples.
func FloatWAVHeader(rate, n int) WAVHeader {
	return WAVHeader{
		FormatTag:     WAVFormatFloat,
		Channels:      1,
		SampleRate:    uint32(rate),
		BitsPerSample: 32,
		DataSize:      uint32(n * 4),
	}
}

// EncodePCM16 builds an in-memory mono 16-bit PCM WAV file.
func EncodePCM16(samples []float32, rate int) []byte {
	h := WAVHeader{
		FormatTag:     WAVFormatPCM,
		Channels:      1,
		SampleRate:    uint32(rate),
		BitsPerSample: 16,
		DataSize:      uint32(len(samples) * 2),
	}

	out := make([]byte, 0, WAVHeaderSize+len(samples)*2)
	out = append(out, h.Bytes()...)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(floatToInt16(s)))
	}
	return out
}

// PutFloat32 encodes samples as little-endian IEEE float32 into dst, which
// must hold 4 bytes per sample.
func PutFloat32(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}

// DecodeWAV reads a WAV stream holding 16-bit PCM or 32-bit float audio and
// returns mono normalized samples and the sample rate. Stereo is downmixed.
func DecodeWAV(r io.Reader) ([]float32, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing RIFF/WAVE marker", ErrInvalidWAV)
	}

	var h WAVHeader
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWAV)
			}
			h.FormatTag = binary.LittleEndian.Uint16(body[0:2])
			h.Channels = binary.LittleEndian.Uint16(body[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			h.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			h.DataSize = size
			return decodeData(r, h)
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, 0, fmt.Errorf("%w: truncated %q chunk", ErrInvalidWAV, id)
			}
		}
	}
}

func decodeData(r io.Reader, h WAVHeader) ([]float32, int, error) {
	if h.Channels != 1 && h.Channels != 2 {
		return nil, 0, ErrUnsupportedChannels
	}

	// a recording that was never finalized has a zero size; read to EOF
	var data []byte
	var err error
	if h.DataSize == 0 {
		data, err = io.ReadAll(r)
	} else {
		data = make([]byte, h.DataSize)
		var n int
		n, err = io.ReadFull(r, data)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			data, err = data[:n], nil
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read WAV data: %w", err)
	}

	var frame Frame
	frame.Channels = int(h.Channels)
	frame.SampleRate = int(h.SampleRate)

	switch {
	case h.FormatTag == WAVFormatFloat && h.BitsPerSample == 32:
		frame.Format = F32
		frame.F32 = make([]float32, len(data)/4)
		for i := range frame.F32 {
			frame.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case h.FormatTag == WAVFormatPCM && h.BitsPerSample == 16:
		frame.Format = S16
		frame.S16 = make([]int16, len(data)/2)
		for i := range frame.S16 {
			frame.S16[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
	default:
		return nil, 0, fmt.Errorf("%w: unsupported encoding tag=%d bits=%d", ErrInvalidWAV, h.FormatTag, h.BitsPerSample)
	}

	conv, err := NewConverter(frame.Channels, frame.SampleRate, frame.SampleRate)
	if err != nil {
		return nil, 0, err
	}
	return conv.Convert(frame), frame.SampleRate, nil
}

func floatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}
