package sensor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// The ADC bridge answers every RequestByte with SensorCount little-endian
// int16 readings followed by StopSequence.
const (
	RequestByte = 'r'
	PacketSize  = types.SensorCount*2 + 2
)

// StopSequence terminates every packet.
var StopSequence = [2]byte{'\r', '\n'}

// ErrReadTimeout is returned when the bridge does not answer in time.
var ErrReadTimeout = errors.New("serial read timed out")

// OutOfSyncError reports a packet whose trailer is not the stop sequence.
type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("incorrect stop sequence detected: %v", e.ByteSequence)
}

// SerialConfig holds configuration for the serial ADC bridge.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial reads the pressure array from an ADC bridge microcontroller over a
// serial line, one request/response exchange per ReadAll.
type Serial struct {
	port     io.ReadWriter
	closer   io.Closer
	portName string
	logger   zerolog.Logger

	mu  sync.Mutex
	buf []byte
}

// OpenSerial opens and flushes the port.
func OpenSerial(cfg SerialConfig, logger zerolog.Logger) (*Serial, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port name is required")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 460800
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 50 * time.Millisecond
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", cfg.Port, err)
	}

	logger.Info().Str("port_name", cfg.Port).Int("baud_rate", cfg.BaudRate).Msg("Serial ADC bridge opened")
	return newSerial(port, port, cfg.Port, logger), nil
}

func newSerial(rw io.ReadWriter, closer io.Closer, portName string, logger zerolog.Logger) *Serial {
	return &Serial{
		port:     rw,
		closer:   closer,
		portName: portName,
		logger:   logger.With().Str("component", "SerialADC").Str("port_name", portName).Logger(),
		buf:      make([]byte, PacketSize),
	}
}

// ReadAll requests one packet and decodes it. A malformed packet triggers a
// resync before the error is returned.
func (s *Serial) ReadAll() (types.Readings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.port.Write([]byte{RequestByte}); err != nil {
		return types.Readings{}, fmt.Errorf("%w: request on %s: %v", ErrAcquisition, s.portName, err)
	}
	if err := s.readPacket(); err != nil {
		var oos *OutOfSyncError
		if errors.As(err, &oos) {
			s.logger.Warn().Err(err).Msg("Packet out of sync, resyncing")
			s.sync()
		}
		return types.Readings{}, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	return DecodePacket(s.buf)
}

func (s *Serial) readPacket() error {
	count := 0
	for count < PacketSize {
		n, err := s.port.Read(s.buf[count:])
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrReadTimeout
		}
		count += n
	}
	if !bytes.Equal(s.buf[PacketSize-2:], StopSequence[:]) {
		seq := make([]byte, PacketSize)
		copy(seq, s.buf)
		return &OutOfSyncError{ByteSequence: seq}
	}
	return nil
}

// sync discards input up to and including the next stop byte, or until the
// line goes quiet.
func (s *Serial) sync() {
	one := make([]byte, 1)
	for {
		n, err := s.port.Read(one)
		if err != nil || n == 0 {
			if err != nil {
				s.logger.Warn().Err(err).Msg("Error while resyncing serial port")
			}
			return
		}
		if one[0] == StopSequence[len(StopSequence)-1] {
			return
		}
	}
}

// Close releases the port.
func (s *Serial) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// DecodePacket turns a PacketSize-byte frame into readings.
func DecodePacket(packet []byte) (types.Readings, error) {
	if len(packet) != PacketSize {
		return types.Readings{}, fmt.Errorf("%w: packet is %d bytes, want %d", ErrAcquisition, len(packet), PacketSize)
	}
	var raw [types.SensorCount]int16
	if err := binary.Read(bytes.NewReader(packet[:PacketSize-2]), binary.LittleEndian, &raw); err != nil {
		return types.Readings{}, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	var r types.Readings
	for i, v := range raw {
		r[i] = int(v)
	}
	return r, nil
}

// EncodePacket is the inverse of DecodePacket, used by the bridge simulator
// and tests. Readings outside the int16 range are clamped.
func EncodePacket(r types.Readings) []byte {
	var raw [types.SensorCount]int16
	for i, v := range r {
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		raw[i] = int16(v)
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, raw)
	buf.Write(StopSequence[:])
	return buf.Bytes()
}
