package endpoint

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	tarmserial "github.com/tarm/serial"

	"github.com/xcan-translate/xcan/internal/can"
	"github.com/xcan-translate/xcan/internal/logging"
	"github.com/xcan-translate/xcan/internal/metrics"
	"github.com/xcan-translate/xcan/internal/transport"
)

// uartEncode builds a UART frame: [0x2D, 0xD4, len+1, data..., checksum]
// where checksum = (len+1) + 0x2D + sum(data) (mod 256). Carries the
// addressing mode in the top bit of the ID word instead of assuming
// extended addressing unconditionally.
func uartEncode(f can.Frame) []byte {
	payload := f.Payload()
	body := make([]byte, 6+len(payload)) // INS(1) FLAGS(1) ID(4) PAYLOAD(0..8)
	body[0] = 2
	body[1] = 0x80 + f.Len
	id := f.ArbitrationID
	if f.IsExtendedID {
		id = (id & can.EFFMask) | can.EFFFlag
	} else {
		id &= can.SFFMask
	}
	binary.BigEndian.PutUint32(body[2:6], id)
	copy(body[6:], payload)

	frame := make([]byte, len(body)+4)
	frame[0] = 0x2D
	frame[1] = 0xD4
	frame[2] = byte(len(body) + 1)
	sum := frame[2] + 0x2D
	for i, b := range body {
		frame[3+i] = b
		sum += b
	}
	frame[3+len(body)] = sum
	return frame
}

// uartDecodeStream consumes complete frames out of in, invoking out for
// each one and leaving any trailing partial frame in the buffer.
func uartDecodeStream(in *bytes.Buffer, out func(can.Frame)) {
	const (
		pre0  = 0x2D
		pre1  = 0xD4
		minLn = 6 + 0 + 1
		maxLn = 6 + 8 + 1
	)
	header := []byte{pre0, pre1}

	for {
		data := in.Bytes()
		if len(data) < 3 {
			return
		}
		i := bytes.Index(data, header)
		if i < 0 {
			if in.Len() > 1 {
				last := data[len(data)-1]
				in.Reset()
				_ = in.WriteByte(last)
			}
			return
		}
		if i > 0 {
			in.Next(i)
			continue
		}
		if len(data) < 4 {
			return
		}
		ln := int(data[2])
		if ln < minLn || ln > maxLn {
			in.Next(1)
			continue
		}
		req := 3 + ln
		if len(data) < req {
			return
		}
		sum := uint(pre0) + uint(data[2])
		for _, b := range data[3 : req-1] {
			sum += uint(b)
		}
		if byte(sum) != data[req-1] {
			in.Next(1)
			continue
		}

		rawID := binary.BigEndian.Uint32(data[5:9]) // after INS and FLAGS
		payload := data[9 : req-1]
		extended := rawID&can.EFFFlag != 0
		id := rawID & can.EFFMask
		if !extended {
			id = rawID & can.SFFMask
		}
		out(can.New(id, payload, 0, extended))
		in.Next(req)
	}
}

// port is the subset of tarm/serial.Port this endpoint relies on, broken
// out for fakes in tests.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Serial drives a UART-attached CAN bridge over a serial port. Writes go
// through an AsyncTx so a stalled port cannot block the caller of Send.
type Serial struct {
	name string
	baud int

	mu   sync.Mutex
	port port
	open bool
	tx   *transport.AsyncTx

	frames chan can.Frame
	stop   chan struct{}
	done   chan struct{}
}

// NewSerial returns an unopened Serial endpoint for the named device at the
// given baud rate.
func NewSerial(name string, baud int) *Serial {
	return &Serial{name: name, baud: baud}
}

func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	p, err := tarmserial.OpenPort(&tarmserial.Config{Name: s.name, Baud: s.baud, ReadTimeout: 100 * time.Millisecond})
	if err != nil {
		return err
	}
	s.port = p
	s.frames = make(chan can.Frame, 256)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.open = true
	s.tx = transport.NewAsyncTx(context.Background(), txQueueSize, s.writeFrame, transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrEndpointIO)
			logging.L().Error("serial_write_error", "device", s.name, "error", err)
		},
		OnDrop: func() error {
			metrics.IncDropped(metrics.ReasonTxOverflow)
			return ErrTxOverflow
		},
	})
	go s.readLoop()
	return nil
}

func (s *Serial) readLoop() {
	defer close(s.done)
	var buf bytes.Buffer
	chunk := make([]byte, 256)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		n, err := s.port.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			uartDecodeStream(&buf, func(f can.Frame) {
				select {
				case s.frames <- f:
				case <-s.stop:
				}
			})
		}
		if err != nil && err != io.EOF {
			logging.L().Warn("serial_read_error", "device", s.name, "error", err)
		}
	}
}

func (s *Serial) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	close(s.stop)
	p := s.port
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()

	tx.Close()
	err := p.Close()
	<-s.done
	return err
}

func (s *Serial) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Serial) Receive(timeout time.Duration) (can.Frame, bool, error) {
	s.mu.Lock()
	open := s.open
	frames := s.frames
	s.mu.Unlock()
	if !open {
		return can.Frame{}, false, ErrNotOpen
	}
	select {
	case f := <-frames:
		return f, true, nil
	case <-time.After(timeout):
		return can.Frame{}, false, nil
	}
}

// Send queues f for asynchronous transmission; it returns ErrTxOverflow
// without blocking if the write queue is full.
func (s *Serial) Send(f can.Frame) error {
	s.mu.Lock()
	open := s.open
	tx := s.tx
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return tx.SendFrame(f)
}

// writeFrame performs the actual blocking port write; only ever called from
// the AsyncTx worker goroutine.
func (s *Serial) writeFrame(f can.Frame) error {
	s.mu.Lock()
	p := s.port
	s.mu.Unlock()
	_, err := p.Write(uartEncode(f))
	return err
}
