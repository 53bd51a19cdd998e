package audio

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
	"github.com/tphakala/pitchtrack-go/internal/logging"
)

const bytesPerSample = 2 // 16-bit signed little-endian

// captureDevice holds information about a selected audio capture device.
type captureDevice struct {
	Name    string
	ID      string
	Pointer unsafe.Pointer
}

// DeviceInfo describes an available capture device for listing.
type DeviceInfo struct {
	Index int
	Name  string
	ID    string
}

// ListCaptureDevices enumerates the capture devices visible to the audio
// backend of the current platform.
func ListCaptureDevices() ([]DeviceInfo, error) {
	malgoCtx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryCaptureInit).
			Context("operation", "init_audio_context").
			Build()
	}
	defer malgoCtx.Uninit() //nolint:errcheck

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryCaptureInit).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		id := strings.TrimSpace(info.ID.String())
		if decoded, err := hexToASCII(id); err == nil {
			id = decoded
		}
		devices = append(devices, DeviceInfo{Index: i, Name: info.Name(), ID: id})
	}
	return devices, nil
}

// DeviceSource captures live audio from a hardware device through malgo.
// The device callback writes raw S16LE bytes into a ring buffer; ReadBatch
// drains the ring and converts to mono float64 in [-1, 1].
type DeviceSource struct {
	sourceName string
	sampleRate int

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	ring     *ringbuffer.RingBuffer
	raw      []byte

	selected captureDevice
	log      *slog.Logger
}

// NewDeviceSource creates a capture source for the device named in the
// audio settings. "sysdefault" or an empty source selects the system
// default device.
func NewDeviceSource(settings conf.AudioSettings) *DeviceSource {
	return &DeviceSource{
		sourceName: settings.Source,
		sampleRate: settings.SampleRate,
		// A second of audio absorbs scheduling jitter between the device
		// callback and the capture loop.
		ring: ringbuffer.New(settings.SampleRate * bytesPerSample),
		log:  logging.ForService("audio.capture"),
	}
}

// Name identifies the source in log records.
func (d *DeviceSource) Name() string {
	if d.selected.Name != "" {
		return d.selected.Name
	}
	return d.sourceName
}

// Start initializes the audio backend, selects the capture device and
// begins streaming. Failures are fatal capture-init errors.
func (d *DeviceSource) Start(_ context.Context) error {
	malgoCtx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, func(message string) {
		d.log.Debug("audio backend", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryCaptureInit).
			Context("operation", "init_audio_context").
			Build()
	}
	d.malgoCtx = malgoCtx

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		d.teardownContext()
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryCaptureInit).
			Context("operation", "enumerate_devices").
			Build()
	}

	selected, err := selectCaptureDevice(d.sourceName, infos)
	if err != nil {
		d.teardownContext()
		return err
	}
	d.selected = selected

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = conf.NumChannels
	deviceConfig.SampleRate = uint32(d.sampleRate)
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.Capture.DeviceID = selected.Pointer

	onReceiveFrames := func(_, samples []byte, _ uint32) {
		if _, err := d.ring.Write(samples); err != nil {
			if errors.Is(err, ringbuffer.ErrIsFull) {
				// Consumer stalled, drop the oldest data to keep capture live.
				d.ring.Reset()
				_, _ = d.ring.Write(samples)
				d.log.Warn("capture ring overflow, dropped buffered audio")
			}
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onReceiveFrames,
	})
	if err != nil {
		d.teardownContext()
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryCaptureInit).
			Context("operation", "init_device").
			Context("device", selected.Name).
			Build()
	}
	d.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		d.teardownContext()
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryCaptureInit).
			Context("operation", "start_device").
			Context("device", selected.Name).
			Build()
	}

	d.log.Info("capture started", "device", selected.Name, "id", selected.ID,
		"samplerate", d.sampleRate)
	return nil
}

// ReadBatch drains up to len(dst) samples from the capture ring. It returns
// the number of whole samples converted, which is 0 when the device has not
// yet delivered enough audio.
func (d *DeviceSource) ReadBatch(dst []float64) (int, error) {
	want := len(dst) * bytesPerSample
	if cap(d.raw) < want {
		d.raw = make([]byte, want)
	}
	raw := d.raw[:want]

	available := d.ring.Length()
	if available < bytesPerSample {
		return 0, nil
	}
	if available < want {
		want = available - available%bytesPerSample
		raw = raw[:want]
	}

	n, err := d.ring.Read(raw)
	if err != nil {
		return 0, errors.New(err).
			Component("audio").
			Category(errors.CategoryResource).
			Context("operation", "read_capture_ring").
			Build()
	}

	samples := n / bytesPerSample
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample:]))
		dst[i] = float64(v) / 32768.0
	}
	return samples, nil
}

// Stop halts the device and releases the audio backend.
func (d *DeviceSource) Stop() error {
	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	d.teardownContext()
	return nil
}

func (d *DeviceSource) teardownContext() {
	if d.malgoCtx != nil {
		_ = d.malgoCtx.Uninit()
		d.malgoCtx.Free()
		d.malgoCtx = nil
	}
}

// platformBackend picks the native audio backend for the current OS.
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// selectCaptureDevice picks the device matching the configured source name
// or ID, falling back to the system default for "sysdefault" or an empty
// setting.
func selectCaptureDevice(audioSource string, infos []malgo.DeviceInfo) (captureDevice, error) {
	useDefault := audioSource == "" || audioSource == "sysdefault"

	for _, info := range infos {
		id := strings.TrimSpace(info.ID.String())
		decoded, err := hexToASCII(id)
		if err != nil {
			decoded = id
		}

		if useDefault {
			if info.IsDefault > 0 {
				return captureDevice{Name: info.Name(), ID: decoded, Pointer: info.ID.Pointer()}, nil
			}
			continue
		}
		if matchesDeviceSetting(decoded, info, audioSource) {
			return captureDevice{Name: info.Name(), ID: decoded, Pointer: info.ID.Pointer()}, nil
		}
	}

	if useDefault && len(infos) > 0 {
		info := infos[0]
		id := strings.TrimSpace(info.ID.String())
		if decoded, err := hexToASCII(id); err == nil {
			id = decoded
		}
		return captureDevice{Name: info.Name(), ID: id, Pointer: info.ID.Pointer()}, nil
	}

	return captureDevice{}, errors.Newf("no capture device matches source %q", audioSource).
		Component("audio").
		Category(errors.CategoryCaptureInit).
		Context("operation", "select_device").
		Context("available", fmt.Sprintf("%d", len(infos))).
		Build()
}

// matchesDeviceSetting checks the decoded ID and device name against the
// configured source.
func matchesDeviceSetting(decodedID string, info malgo.DeviceInfo, audioSource string) bool {
	return decodedID == audioSource || strings.Contains(info.Name(), audioSource)
}

// hexToASCII converts a hexadecimal string to an ASCII string.
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
