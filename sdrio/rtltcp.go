package sdrio

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/openskynav/gogps/config"
	"github.com/openskynav/gogps/constants"
)

// rtl_tcp command opcodes.
const (
	opSetFrequency  byte = 0x01
	opSetSampleRate byte = 0x02
	opSetGainMode   byte = 0x03
	opSetGain       byte = 0x04
	opSetBiasTee    byte = 0x0E
)

// RtlTcpSource connects to a remote rtl_tcp server and streams raw u8 IQ
// (rtl_tcp's native wire format) over the TCP socket, implemented directly
// against the 5-byte opcode+value command protocol rather than through a
// higher-level client package (DESIGN.md documents why).
type RtlTcpSource struct {
	conn net.Conn
}

// DialRtlTcp connects to addr, discards the 12-byte dongle-info header
// rtl_tcp sends on connect, and issues the startup command sequence: set
// center frequency to the GPS L1 frequency, sample rate to 2.046 MHz,
// gain mode/gain and bias-tee per conf.
func DialRtlTcp(addr string, conf config.RadioConf) (*RtlTcpSource, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("sdrio: dial rtl_tcp %s: %w", addr, err)
	}

	header := make([]byte, 12)
	if _, err := readFull(conn, header); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sdrio: read rtl_tcp dongle info: %w", err)
	}

	s := &RtlTcpSource{conn: conn}

	freq := conf.Frequency
	if freq == 0 {
		freq = constants.L1Hz
	}
	rate := conf.SampleRate
	if rate == 0 {
		rate = constants.DefaultSampleRateHz
	}

	if err := s.command(opSetSampleRate, uint32(rate)); err != nil {
		return nil, err
	}
	if err := s.command(opSetFrequency, uint32(freq)); err != nil {
		return nil, err
	}
	if conf.Gain > 0 {
		if err := s.command(opSetGainMode, 1); err != nil {
			return nil, err
		}
		if err := s.command(opSetGain, uint32(conf.Gain*10)); err != nil {
			return nil, err
		}
	}
	if conf.BiasTee {
		if err := s.command(opSetBiasTee, 1); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *RtlTcpSource) command(opcode byte, value uint32) error {
	cmd := make([]byte, 5)
	cmd[0] = opcode
	binary.BigEndian.PutUint32(cmd[1:], value)
	_, err := s.conn.Write(cmd)
	if err != nil {
		return fmt.Errorf("sdrio: rtl_tcp command 0x%02x: %w", opcode, err)
	}
	return nil
}

// Read satisfies conditioner.ByteSource; rtl_tcp's wire format is always
// unsigned 8-bit interleaved I/Q.
func (s *RtlTcpSource) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

// Close closes the TCP connection.
func (s *RtlTcpSource) Close() error {
	return s.conn.Close()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
