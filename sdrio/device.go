package sdrio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"

	"github.com/openskynav/gogps/config"
)

// LogAllDevices enumerates SoapySDR modules and attached devices, backing
// the CLI's probe command.
func LogAllDevices() {
	sdrlogger.SetLogLevel(sdrlogger.Error)
	for _, m := range modules.ListModules() {
		v := modules.GetModuleVersion(m)
		if v == "" {
			v = "[none]"
		}
		log.Infof("SoapySDR module: %s, version: %s", m, v)
	}
	devs := device.Enumerate(nil)
	log.Infof("Found %d device(s)", len(devs))
	for i, d := range devs {
		log.Infof("device %d: driver=%s", i, d["driver"])
	}
}

// DeviceSource streams IQ from a locally attached tuner (RTL-SDR by
// default, any driver SoapySDR exposes) via SoapySDR's CF32 stream, then
// re-serializes into little-endian interleaved float32 bytes so it flows
// through the same conditioner.ByteSource path as the file and rtl_tcp
// sources.
type DeviceSource struct {
	dev    *device.SDRDevice
	stream *device.SDRStreamCF32
	buf    [][]complex64
	chunk  uint
}

// OpenDevice connects to the named SoapySDR driver (conf.Driver, typically
// "rtlsdr"), sets frequency and sample rate per conf, and activates an RX
// CF32 stream.
func OpenDevice(conf config.RadioConf) (*DeviceSource, error) {
	sdrlogger.SetLogLevel(sdrlogger.Error)

	args := map[string]string{"driver": conf.Driver}
	dev, err := device.Make(args)
	if err != nil {
		return nil, fmt.Errorf("sdrio: could not open SoapySDR device %q: %w", conf.Driver, err)
	}

	if err := dev.SetSampleRate(device.DirectionRX, 0, conf.SampleRate); err != nil {
		return nil, fmt.Errorf("sdrio: set sample rate: %w", err)
	}
	if err := dev.SetFrequency(device.DirectionRX, 0, conf.Frequency, nil); err != nil {
		return nil, fmt.Errorf("sdrio: set frequency: %w", err)
	}
	if conf.Gain > 0 {
		if err := dev.SetGain(device.DirectionRX, 0, float64(conf.Gain)); err != nil {
			log.Warnf("sdrio: set gain: %v", err)
		}
	}

	stream, err := dev.SetupSDRStreamCF32(device.DirectionRX, []uint{0}, nil)
	if err != nil {
		return nil, fmt.Errorf("sdrio: setup stream: %w", err)
	}
	if err := stream.Activate(0, 0, 0); err != nil {
		return nil, fmt.Errorf("sdrio: activate stream: %w", err)
	}

	const chunk = 16384
	buf := make([][]complex64, 1)
	buf[0] = make([]complex64, chunk)

	return &DeviceSource{dev: dev, stream: stream, buf: buf, chunk: chunk}, nil
}

// Read pulls one burst of samples from the tuner and serializes it as
// little-endian interleaved float32 I/Q into p, returning the byte count.
func (d *DeviceSource) Read(p []byte) (int, error) {
	flags := make([]int, 1)
	_, n, err := d.stream.Read(d.buf, d.chunk, flags, 100000)
	if err != nil {
		return 0, fmt.Errorf("sdrio: device read: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	need := n * 8
	if need > len(p) {
		n = len(p) / 8
		need = n * 8
	}
	for i := 0; i < n; i++ {
		s := d.buf[0][i]
		binary.LittleEndian.PutUint32(p[i*8:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(p[i*8+4:], math.Float32bits(imag(s)))
	}
	return need, nil
}

// Close deactivates and closes the stream.
func (d *DeviceSource) Close() error {
	if err := d.stream.Deactivate(0, 0); err != nil {
		log.Warnf("sdrio: deactivate stream: %v", err)
	}
	return d.stream.Close()
}
