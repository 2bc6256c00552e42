package endpoint

import (
	"testing"
	"time"

	"github.com/xcan-translate/xcan/internal/can"
)

func TestLoopbackReceiveTimesOutWhenEmpty(t *testing.T) {
	l := NewLoopback("a")
	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	_, ok, err := l.Receive(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if ok {
		t.Error("expected ok=false on empty queue timeout")
	}
}

func TestLoopbackSendWithoutPeerLoopsBack(t *testing.T) {
	l := NewLoopback("a")
	_ = l.Open()
	defer l.Close()

	f := can.New(0x123, []byte{1, 2, 3}, 0, false)
	if err := l.Send(f); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, ok, err := l.Receive(time.Second)
	if err != nil || !ok {
		t.Fatalf("Receive ok=%v err=%v", ok, err)
	}
	if got.ArbitrationID != 0x123 {
		t.Errorf("ArbitrationID = %#x, want 0x123", got.ArbitrationID)
	}
}

func TestLoopbackPairDeliversToPeer(t *testing.T) {
	a := NewLoopback("a")
	b := NewLoopback("b")
	Pair(a, b)
	_ = a.Open()
	_ = b.Open()
	defer a.Close()
	defer b.Close()

	f := can.New(0x10, []byte{9}, 0, false)
	if err := a.Send(f); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, ok, err := b.Receive(time.Second)
	if err != nil || !ok {
		t.Fatalf("Receive on peer ok=%v err=%v", ok, err)
	}
	if got.ArbitrationID != 0x10 {
		t.Errorf("ArbitrationID = %#x, want 0x10", got.ArbitrationID)
	}

	// a's own queue must remain empty since delivery went to the peer.
	_, ok, _ = a.Receive(20 * time.Millisecond)
	if ok {
		t.Error("expected a's own queue to be empty after peer delivery")
	}
}

func TestLoopbackNotOpenReturnsErr(t *testing.T) {
	l := NewLoopback("a")
	if _, _, err := l.Receive(time.Millisecond); err != ErrNotOpen {
		t.Errorf("Receive before Open: err = %v, want ErrNotOpen", err)
	}
	if err := l.Send(can.New(1, nil, 0, false)); err != ErrNotOpen {
		t.Errorf("Send before Open: err = %v, want ErrNotOpen", err)
	}
}

func TestLoopbackInject(t *testing.T) {
	l := NewLoopback("a")
	_ = l.Open()
	defer l.Close()
	l.Inject(can.New(0x42, []byte{1}, 0, false))
	got, ok, _ := l.Receive(time.Second)
	if !ok || got.ArbitrationID != 0x42 {
		t.Errorf("Inject/Receive = %+v, ok=%v", got, ok)
	}
}
