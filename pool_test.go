package rigid3d_test

import (
	"testing"

	"github.com/nyxphys/rigid3d"
)

func TestPoolTakeRoundsToPowerOfTwo(t *testing.T) {
	p := rigid3d.NewPool()
	buf := p.Take(100)
	if len(buf.Bytes) != 128 {
		t.Errorf("Take(100) capacity = %d, want 128", len(buf.Bytes))
	}
	p.Return(buf)
}

func TestPoolOutstandingAccounting(t *testing.T) {
	p := rigid3d.NewPool()
	var bufs []rigid3d.Buffer
	for i := 0; i < 5; i++ {
		bufs = append(bufs, p.Take(64))
	}
	if got := p.Outstanding(6); got != 5 {
		t.Errorf("Outstanding(power=6) = %d, want 5", got)
	}
	for _, b := range bufs {
		p.Return(b)
	}
	if got := p.Outstanding(6); got != 0 {
		t.Errorf("Outstanding(power=6) after returning all = %d, want 0", got)
	}
}

func TestPoolDoubleReturnPanics(t *testing.T) {
	p := rigid3d.NewPool()
	buf := p.Take(32)
	p.Return(buf)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on double-return")
		}
	}()
	p.Return(buf)
}

func TestPoolResizePreservesBytes(t *testing.T) {
	p := rigid3d.NewPool()
	buf := p.Take(16)
	copy(buf.Bytes, []byte("hello"))
	buf = p.Resize(buf, 256, 5)
	if string(buf.Bytes[:5]) != "hello" {
		t.Errorf("Resize lost data: got %q", buf.Bytes[:5])
	}
	p.Return(buf)
}

func TestPoolScopedAlwaysReturns(t *testing.T) {
	p := rigid3d.NewPool()
	func() {
		defer func() { recover() }()
		p.Scoped(64, func(buf rigid3d.Buffer) {
			panic("boom")
		})
	}()
	if got := p.Outstanding(6); got != 0 {
		t.Errorf("Scoped leaked a buffer across a panic: Outstanding = %d", got)
	}
}

func TestCreateDestroyLeakCheck(t *testing.T) {
	p := rigid3d.NewPool()
	for i := 0; i < 1000; i++ {
		buf := p.Take(48)
		p.Return(buf)
	}
	for power := uint8(0); power <= 30; power++ {
		if got := p.Outstanding(power); got != 0 {
			t.Errorf("power %d: Outstanding = %d after 1000 take/return cycles, want 0", power, got)
		}
	}
}
