package rtty

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

// wavReadChunk is the number of samples requested per read
const wavReadChunk = 8192

// Samples is an in-memory block of interleaved samples
type Samples struct {
	Data       []float64
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames in the block
func (s Samples) Frames() int {
	if s.Channels < 1 {
		return 0
	}
	return len(s.Data) / s.Channels
}

// SamplesFromInt16 wraps mono PCM samples
func SamplesFromInt16(pcm []int16, sampleRate int) Samples {
	return Samples{Data: Int16ToFloat(pcm), Channels: 1, SampleRate: sampleRate}
}

// LoadWAV reads a whole WAV file into memory
func LoadWAV(path string) (Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return Samples{}, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	s, err := ReadWAV(bufio.NewReader(f))
	if err != nil {
		return Samples{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadWAV decodes a WAV stream into interleaved float samples
func ReadWAV(r io.Reader) (Samples, error) {
	w, err := wav.New(r)
	if err != nil {
		return Samples{}, fmt.Errorf("failed to parse WAV header: %w", err)
	}

	s := Samples{
		Channels:   int(w.Header.NumChannels),
		SampleRate: int(w.Header.SampleRate),
	}
	if s.Channels < 1 {
		return Samples{}, fmt.Errorf("WAV header reports %d channels", s.Channels)
	}

	s.Data = make([]float64, 0, w.Samples)
	for remaining := w.Samples; remaining > 0; {
		n := min(wavReadChunk, remaining)
		raw, err := w.ReadSamples(n)
		if err != nil {
			return Samples{}, fmt.Errorf("failed to read WAV samples: %w", err)
		}
		s.Data = appendPCM(s.Data, raw)
		remaining -= n
	}

	return s, nil
}

// appendPCM scales raw go-dsp samples to [-1, 1)
func appendPCM(dst []float64, raw interface{}) []float64 {
	switch d := raw.(type) {
	case []uint8:
		for _, v := range d {
			dst = append(dst, (float64(v)-128)/128)
		}
	case []int16:
		for _, v := range d {
			dst = append(dst, float64(v)/32768)
		}
	case []float32:
		for _, v := range d {
			dst = append(dst, float64(v))
		}
	}
	return dst
}

// WAVWriter writes 16-bit PCM WAV files
type WAVWriter struct {
	file          *os.File
	sampleRate    int
	channels      int
	bitsPerSample int
	dataSize      int64
}

// wavHeader is the canonical 44-byte PCM header
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample/8
	BlockAlign    uint16 // NumChannels * BitsPerSample/8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Data bytes
}

// NewWAVWriter creates filename and writes a placeholder header
func NewWAVWriter(filename string, sampleRate, channels int) (*WAVWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	w := &WAVWriter{
		file:          file,
		sampleRate:    sampleRate,
		channels:      channels,
		bitsPerSample: 16,
	}

	if err := w.writeHeader(0xFFFFFFFF, 0xFFFFFFFF); err != nil {
		file.Close()
		return nil, err
	}

	return w, nil
}

func (w *WAVWriter) writeHeader(chunkSize, dataSize uint32) error {
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     chunkSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(w.channels),
		SampleRate:    uint32(w.sampleRate),
		ByteRate:      uint32(w.sampleRate * w.channels * w.bitsPerSample / 8),
		BlockAlign:    uint16(w.channels * w.bitsPerSample / 8),
		BitsPerSample: uint16(w.bitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	if err := binary.Write(w.file, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	return nil
}

// WriteSamples appends interleaved PCM samples
func (w *WAVWriter) WriteSamples(samples []int16) error {
	if err := binary.Write(w.file, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	w.dataSize += int64(len(samples) * w.bitsPerSample / 8)
	return nil
}

// Close rewrites the header with the final sizes and closes the file
func (w *WAVWriter) Close() error {
	if w.file == nil {
		return nil
	}
	defer func() { w.file = nil }()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to seek to beginning: %w", err)
	}
	if err := w.writeHeader(uint32(w.dataSize+36), uint32(w.dataSize)); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Duration returns the recorded length in seconds
func (w *WAVWriter) Duration() float64 {
	frames := w.dataSize / int64(w.channels*w.bitsPerSample/8)
	return float64(frames) / float64(w.sampleRate)
}
