//go:build linux

package endpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/xcan-translate/xcan/internal/can"
	"github.com/xcan-translate/xcan/internal/metrics"
	"github.com/xcan-translate/xcan/internal/transport"
)

// RawSocket binds a raw AF_CAN socket to a Linux SocketCAN interface (can0,
// vcan0, ...) and exchanges classical CAN frames over it. Writes go through
// an AsyncTx so a wedged or slow bus cannot stall the caller of Send.
type RawSocket struct {
	iface string

	mu   sync.Mutex
	fd   int
	open bool
	tx   *transport.AsyncTx
}

func newRawSocket(iface string) Endpoint { return &RawSocket{iface: iface, fd: -1} }

// Open binds the raw CAN socket. Requires CAP_NET_ADMIN on most systems.
func (r *RawSocket) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return nil
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("endpoint: socket(AF_CAN): %w", err)
	}
	ifi, err := net.InterfaceByName(r.iface)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("endpoint: if %q: %w", r.iface, err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("endpoint: bind(can@%s): %w", r.iface, err)
	}
	r.fd = fd
	r.open = true
	r.tx = transport.NewAsyncTx(context.Background(), txQueueSize, r.writeFrame, transport.Hooks{
		OnError: func(err error) { metrics.IncError(metrics.ErrEndpointIO) },
		OnDrop: func() error {
			metrics.IncDropped(metrics.ReasonTxOverflow)
			return ErrTxOverflow
		},
	})
	return nil
}

func (r *RawSocket) Close() error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return nil
	}
	r.open = false
	fd := r.fd
	r.fd = -1
	tx := r.tx
	r.tx = nil
	r.mu.Unlock()
	if tx != nil {
		tx.Close()
	}
	return unix.Close(fd)
}

func (r *RawSocket) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Receive polls the socket with the given timeout via SO_RCVTIMEO-equivalent
// select, since unix.Read has no per-call deadline on a raw CAN socket.
func (r *RawSocket) Receive(timeout time.Duration) (can.Frame, bool, error) {
	r.mu.Lock()
	fd := r.fd
	open := r.open
	r.mu.Unlock()
	if !open {
		return can.Frame{}, false, ErrNotOpen
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	fdSet := &unix.FdSet{}
	fdSet.Bits[fd/64] |= 1 << uint(fd%64)
	n, err := unix.Select(fd+1, fdSet, nil, nil, &tv)
	if err != nil {
		return can.Frame{}, false, fmt.Errorf("endpoint: select: %w", err)
	}
	if n == 0 {
		return can.Frame{}, false, nil
	}

	var buf [unix.CAN_MTU]byte
	rn, err := unix.Read(fd, buf[:])
	if err != nil {
		return can.Frame{}, false, err
	}
	if rn != unix.CAN_MTU {
		return can.Frame{}, false, fmt.Errorf("endpoint: short read: %d", rn)
	}

	rawID := binary.LittleEndian.Uint32(buf[0:4])
	dlc := int(buf[4])
	if dlc < 0 || dlc > can.MaxDataLen {
		dlc = can.MaxDataLen
	}
	extended := rawID&can.EFFFlag != 0
	id := rawID & can.EFFMask
	if !extended {
		id = rawID & can.SFFMask
	}
	frame := can.New(id, buf[8:8+dlc], 0, extended)
	return frame, true, nil
}

// Send queues f for asynchronous transmission; it returns ErrTxOverflow
// without blocking if the write queue is full.
func (r *RawSocket) Send(f can.Frame) error {
	r.mu.Lock()
	tx := r.tx
	open := r.open
	r.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return tx.SendFrame(f)
}

// writeFrame performs the actual blocking socket write; only ever called
// from the AsyncTx worker goroutine.
func (r *RawSocket) writeFrame(f can.Frame) error {
	r.mu.Lock()
	fd := r.fd
	r.mu.Unlock()

	rawID := f.ArbitrationID
	if f.IsExtendedID {
		rawID = (rawID & can.EFFMask) | can.EFFFlag
	} else {
		rawID &= can.SFFMask
	}

	var buf [unix.CAN_MTU]byte
	binary.LittleEndian.PutUint32(buf[0:4], rawID)
	buf[4] = f.Len
	copy(buf[8:], f.Payload())
	_, err := unix.Write(fd, buf[:])
	return err
}
