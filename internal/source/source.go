// ABOUTME: Capture stand-ins that feed the client without a microphone
// ABOUTME: Test tone and looping MP3/FLAC files, downmixed to mono float32
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiorouter/voicelink/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
)

const (
	// Tone selects the built-in test tone
	Tone = "tone"

	toneFrequency = 440.0
	toneAmplitude = 0.5
)

var log = logrus.WithField("component", "source")

// Reader yields mono float32 samples at its own rate
type Reader interface {
	Read(out []float32) (int, error)
	SampleRate() int
	Close() error
}

// Open returns the tone for "tone", otherwise decodes the named .mp3 or
// .flac file. toneRate sets the tone's rate.
func Open(name string, toneRate int) (Reader, error) {
	if name == Tone {
		return NewTone(toneRate, toneFrequency), nil
	}

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".mp3":
		return NewMP3(name)
	case ".flac":
		return NewFLAC(name)
	default:
		return nil, fmt.Errorf("unsupported audio source %q (supported: tone, .mp3, .flac)", name)
	}
}

// ToneReader generates a sine wave
type ToneReader struct {
	sampleIndex uint64
	frequency   float64
	sampleRate  int
}

// NewTone creates a sine generator
func NewTone(sampleRate int, frequency float64) *ToneReader {
	return &ToneReader{frequency: frequency, sampleRate: sampleRate}
}

func (s *ToneReader) Read(out []float32) (int, error) {
	for i := range out {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		out[i] = float32(math.Sin(2*math.Pi*s.frequency*t) * toneAmplitude)
	}
	s.sampleIndex += uint64(len(out))
	return len(out), nil
}

func (s *ToneReader) SampleRate() int { return s.sampleRate }
func (s *ToneReader) Close() error    { return nil }

// MP3Reader loops an MP3 file
type MP3Reader struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
}

// NewMP3 opens an MP3 file
func NewMP3(path string) (*MP3Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	log.WithFields(logrus.Fields{
		"file": filepath.Base(path),
		"rate": decoder.SampleRate(),
	}).Info("Loaded MP3")

	return &MP3Reader{file: f, decoder: decoder, sampleRate: decoder.SampleRate()}, nil
}

// Read downmixes the decoder's stereo int16 output to mono
func (s *MP3Reader) Read(out []float32) (int, error) {
	const frameBytes = 4 // two int16 channels
	need := len(out) * frameBytes
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.decoder, buf)
	frames := n / frameBytes
	for i := 0; i < frames; i++ {
		l := int32(int16(binary.LittleEndian.Uint16(buf[i*frameBytes:])))
		r := int32(int16(binary.LittleEndian.Uint16(buf[i*frameBytes+2:])))
		out[i] = audio.PCMToFloat(int16((l + r) / 2))
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if rewindErr := s.rewind(); rewindErr != nil {
			return frames, rewindErr
		}
		return frames, nil
	}
	if err != nil {
		return frames, fmt.Errorf("mp3 decode error: %w", err)
	}
	return frames, nil
}

func (s *MP3Reader) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *MP3Reader) SampleRate() int { return s.sampleRate }
func (s *MP3Reader) Close() error    { return s.file.Close() }

// FLACReader loops a FLAC file
type FLACReader struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int

	// decoded mono samples not yet returned
	pending []float32
}

// NewFLAC opens a FLAC file
func NewFLAC(path string) (*FLACReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	log.WithFields(logrus.Fields{
		"file":      filepath.Base(path),
		"rate":      info.SampleRate,
		"channels":  info.NChannels,
		"bit_depth": info.BitsPerSample,
	}).Info("Loaded FLAC")

	return &FLACReader{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
	}, nil
}

// Read downmixes whole FLAC frames to mono, keeping leftovers for the next
// call
func (s *FLACReader) Read(out []float32) (int, error) {
	rewound := false
	for len(s.pending) < len(out) {
		frame, err := s.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			if rewound {
				return 0, fmt.Errorf("flac file has no audio frames")
			}
			if err := s.rewind(); err != nil {
				return 0, err
			}
			rewound = true
			continue
		}
		if err != nil {
			n := copy(out, s.pending)
			s.pending = s.pending[n:]
			return n, fmt.Errorf("flac decode error: %w", err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			var sum float32
			for ch := 0; ch < s.channels; ch++ {
				sum += audio.IntToFloat(frame.Subframes[ch].Samples[i], s.bitDepth)
			}
			s.pending = append(s.pending, sum/float32(s.channels))
		}
		rewound = false
	}

	n := copy(out, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	return n, nil
}

func (s *FLACReader) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLACReader) SampleRate() int { return s.sampleRate }
func (s *FLACReader) Close() error    { return s.file.Close() }
