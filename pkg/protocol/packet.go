// ABOUTME: Binary audio packet framing for the media router
// ABOUTME: A JSON header line followed by little-endian int16 PCM
package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	// HeaderTerminator ends the header text
	HeaderTerminator = '\n'

	// MaxHeaderSize bounds the scan for the header terminator
	MaxHeaderSize = 1024

	// BytesPerSample is the size of one network sample
	BytesPerSample = 2
)

// ErrMalformedPacket is returned when a packet cannot be decoded
var ErrMalformedPacket = errors.New("malformed packet")

// Header carries routing metadata for one audio frame. Field order is the
// wire order.
type Header struct {
	Account     string `json:"acnt"`
	Room        string `json:"rm"`
	Participant string `json:"ppt"`
	Count       int    `json:"cnt"`
	Rate        int    `json:"rate"`
}

// Packet is a decoded audio frame with its header
type Packet struct {
	Header  Header
	Samples []int16
}

// Encode frames samples behind a header. The header's Count is taken from
// len(samples).
func Encode(h Header, samples []int16) ([]byte, error) {
	h.Count = len(samples)

	hdr, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}
	if len(hdr)+1 > MaxHeaderSize {
		return nil, fmt.Errorf("%w: header of %d bytes exceeds %d", ErrMalformedPacket, len(hdr)+1, MaxHeaderSize)
	}

	buf := make([]byte, len(hdr)+1+len(samples)*BytesPerSample)
	n := copy(buf, hdr)
	buf[n] = HeaderTerminator
	payload := buf[n+1:]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(payload[i*BytesPerSample:], uint16(s))
	}

	return buf, nil
}

// ValidateHeader reports ErrMalformedPacket when h would not fit within
// MaxHeaderSize for any frame length
func ValidateHeader(h Header) error {
	h.Count = math.MaxInt32
	hdr, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	if len(hdr)+1 > MaxHeaderSize {
		return fmt.Errorf("%w: header of %d bytes exceeds %d", ErrMalformedPacket, len(hdr)+1, MaxHeaderSize)
	}
	return nil
}

// Decode splits a packet at the first newline and parses both halves
func Decode(data []byte) (*Packet, error) {
	scan := data
	if len(scan) > MaxHeaderSize {
		scan = scan[:MaxHeaderSize]
	}

	idx := bytes.IndexByte(scan, HeaderTerminator)
	if idx < 0 {
		return nil, fmt.Errorf("%w: no header terminator in first %d bytes", ErrMalformedPacket, len(scan))
	}

	var h Header
	if err := json.Unmarshal(data[:idx], &h); err != nil {
		return nil, fmt.Errorf("%w: bad header: %v", ErrMalformedPacket, err)
	}

	payload := data[idx+1:]
	if len(payload)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: odd payload length %d", ErrMalformedPacket, len(payload))
	}

	count := len(payload) / BytesPerSample
	if h.Count != count {
		return nil, fmt.Errorf("%w: header count %d, payload has %d samples", ErrMalformedPacket, h.Count, count)
	}

	samples := make([]int16, count)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*BytesPerSample:]))
	}

	return &Packet{Header: h, Samples: samples}, nil
}
