// Package audio provides WAV decoding/encoding and the per-line clip
// model shared by the synthesis and composition stages.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

var (
	// ErrNotWAV indicates the payload is not a RIFF/WAVE stream.
	ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")
	// ErrUnsupportedFormat indicates a WAV encoding outside PCM int
	// 8/16/32 and float 32.
	ErrUnsupportedFormat = errors.New("audio: unsupported WAV encoding")
)

// Waveform holds decoded mono PCM samples normalized to [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the waveform length in seconds.
func (w *Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Peak returns the maximum absolute sample value.
func (w *Waveform) Peak() float64 {
	var peak float64
	for _, s := range w.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Silence returns an all-zero waveform of the given duration.
func Silence(duration float64, sampleRate int) *Waveform {
	n := int(math.Round(duration * float64(sampleRate)))
	return &Waveform{
		Samples:    make([]float64, n),
		SampleRate: sampleRate,
	}
}

// DecodeWAV parses a RIFF/WAVE byte stream into a mono waveform.
// Multi-channel audio is downmixed by averaging the channels.
func DecodeWAV(data []byte) (*Waveform, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		audioFormat   uint16
		numChannels   uint16
		sampleRate    uint32
		bitsPerSample uint16
		raw           []byte
		haveFmt       bool
	)

	// Walk the chunk list; anything besides fmt and data is skipped.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrUnsupportedFormat
			}
			audioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			numChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			raw = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			// Chunks are word-aligned
			off++
		}
	}

	if !haveFmt || raw == nil {
		return nil, ErrNotWAV
	}
	if numChannels == 0 || sampleRate == 0 {
		return nil, ErrUnsupportedFormat
	}

	var readSample func(b []byte) float64
	switch {
	case audioFormat == 1 && bitsPerSample == 16:
		readSample = func(b []byte) float64 {
			s := int16(b[0]) | int16(b[1])<<8
			return float64(s) / 32768.0
		}
	case audioFormat == 1 && bitsPerSample == 8:
		readSample = func(b []byte) float64 {
			return (float64(b[0]) - 128.0) / 128.0
		}
	case audioFormat == 1 && bitsPerSample == 32:
		readSample = func(b []byte) float64 {
			s := int32(binary.LittleEndian.Uint32(b))
			return float64(s) / 2147483648.0
		}
	case audioFormat == 3 && bitsPerSample == 32:
		readSample = func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	default:
		return nil, fmt.Errorf("%w: format %d, %d-bit", ErrUnsupportedFormat, audioFormat, bitsPerSample)
	}

	bytesPerSample := int(bitsPerSample) / 8
	frameSize := bytesPerSample * int(numChannels)
	frames := len(raw) / frameSize

	samples := make([]float64, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < int(numChannels); c++ {
			i := f*frameSize + c*bytesPerSample
			sum += readSample(raw[i : i+bytesPerSample])
		}
		samples[f] = sum / float64(numChannels)
	}

	return &Waveform{Samples: samples, SampleRate: int(sampleRate)}, nil
}

// DecodeWAVFile decodes the WAV file at path.
func DecodeWAVFile(path string) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav file: %w", err)
	}
	return DecodeWAV(data)
}

// EncodeWAV serializes a waveform as 16-bit mono PCM WAV. Samples
// outside [-1, 1] are clamped.
func EncodeWAV(w *Waveform) []byte {
	n := len(w.Samples)
	dataSize := n * 2
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(w.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(w.SampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range w.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(int16(math.Round(s*32767))))
	}
	return buf
}

// WriteWAVFile encodes the waveform and writes it to path.
func WriteWAVFile(path string, w *Waveform) error {
	if err := os.WriteFile(path, EncodeWAV(w), 0644); err != nil {
		return fmt.Errorf("failed to write wav file: %w", err)
	}
	return nil
}
