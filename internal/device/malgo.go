// ABOUTME: Malgo (miniaudio) device with callback pull playback and capture
// ABOUTME: Mono float32 in both directions at the client's capture rate
package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

const captureQueueDepth = 16

// Malgo runs playback, capture, or both on one miniaudio device
type Malgo struct {
	config Config

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	capture  *captureQueue
	volume   volume

	// callback scratch, only touched on the audio thread
	playScratch []float32
	capScratch  []float32
	assembler   *frameAssembler
}

// NewMalgo creates a malgo device; nothing is opened until Start
func NewMalgo(config Config) (*Malgo, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", config.SampleRate)
	}
	if config.Playback == nil && config.Capture == nil {
		return nil, fmt.Errorf("device needs playback, capture or both")
	}
	if config.Capture != nil && config.FrameSize <= 0 {
		return nil, fmt.Errorf("capture needs a positive frame size")
	}

	m := &Malgo{config: config}
	m.volume.set(100)
	if config.Capture != nil {
		m.assembler = newFrameAssembler(config.FrameSize)
	}
	return m, nil
}

func (m *Malgo) deviceType() malgo.DeviceType {
	switch {
	case m.config.Playback != nil && m.config.Capture != nil:
		return malgo.Duplex
	case m.config.Capture != nil:
		return malgo.Capture
	default:
		return malgo.Playback
	}
}

// Start opens and starts the device
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	deviceType := m.deviceType()
	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Alsa.NoMMap = 1

	if m.config.Capture != nil {
		m.capture = newCaptureQueue(m.config.Capture, captureQueueDepth)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: m.dataCallback,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		m.releaseContext(ctx)
		m.stopCapture()
		return fmt.Errorf("failed to initialize %s device: %w", typeName(deviceType), err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.releaseContext(ctx)
		m.stopCapture()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.malgoCtx = ctx
	m.device = device

	log.WithFields(logrus.Fields{
		"rate": m.config.SampleRate,
		"mode": typeName(deviceType),
	}).Info("Audio device started (malgo/F32 mono)")

	return nil
}

// dataCallback runs on the audio thread
func (m *Malgo) dataCallback(pOutput, pInput []byte, frameCount uint32) {
	n := int(frameCount)

	if m.config.Playback != nil && len(pOutput) > 0 {
		if cap(m.playScratch) < n {
			m.playScratch = make([]float32, n)
		}
		out := m.playScratch[:n]
		m.config.Playback(out)
		m.volume.apply(out)
		encodeFloat32LE(pOutput, out)
	}

	if m.capture != nil && len(pInput) > 0 {
		if cap(m.capScratch) < n {
			m.capScratch = make([]float32, n)
		}
		in := m.capScratch[:decodeFloat32LE(m.capScratch[:n], pInput)]
		m.assembler.add(in, m.capture.offer)
	}
}

// SetVolume sets the playback volume (0-100)
func (m *Malgo) SetVolume(volume int) {
	m.volume.set(volume)
}

// Close stops the device and releases resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.WithError(err).Warn("Device stop error")
		}
		m.device.Uninit()
		m.device = nil
	}
	m.stopCapture()
	if m.malgoCtx != nil {
		m.releaseContext(m.malgoCtx)
		m.malgoCtx = nil
	}
	return nil
}

func (m *Malgo) stopCapture() {
	if m.capture != nil {
		m.capture.close()
		m.capture = nil
	}
}

func (m *Malgo) releaseContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		log.WithError(err).Warn("Malgo context uninit error")
	}
	ctx.Free()
}

func typeName(t malgo.DeviceType) string {
	switch t {
	case malgo.Duplex:
		return "duplex"
	case malgo.Capture:
		return "capture"
	case malgo.Playback:
		return "playback"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}
