package buffer

import (
	"testing"

	"github.com/markus-lassfolk/trackerd/pkg/logx"
	"github.com/markus-lassfolk/trackerd/pkg/telem"
)

func rec(seq uint64) *telem.Record {
	return &telem.Record{DeviceID: "tracker-01", Seq: seq, Heartbeat: true}
}

func TestBuffer_FIFOOrder(t *testing.T) {
	b, err := New(10, nil, logx.NewLogger("error", "test"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for seq := uint64(1); seq <= 3; seq++ {
		if dropped := b.Offer(rec(seq)); dropped {
			t.Errorf("Offer(%d) reported a drop below capacity", seq)
		}
	}

	for want := uint64(1); want <= 3; want++ {
		head := b.Peek()
		if head == nil || head.Seq != want {
			t.Fatalf("Peek = %v, want seq %d", head, want)
		}
		b.Ack(head.Seq)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after draining, want 0", b.Len())
	}
}

func TestBuffer_DropOldestAtCapacity(t *testing.T) {
	b, err := New(3, nil, logx.NewLogger("error", "test"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	b.Offer(rec(1))
	b.Offer(rec(2))
	b.Offer(rec(3))
	if dropped := b.Offer(rec(4)); !dropped {
		t.Fatal("Offer at capacity did not report the drop")
	}

	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3", b.Len())
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", b.Dropped())
	}

	// Oldest (seq 1) was evicted; the survivors drain in order.
	for _, want := range []uint64{2, 3, 4} {
		head := b.Peek()
		if head == nil || head.Seq != want {
			t.Fatalf("Peek = %v, want seq %d", head, want)
		}
		b.Ack(head.Seq)
	}
}

func TestBuffer_PeekDoesNotRemove(t *testing.T) {
	b, _ := New(10, nil, logx.NewLogger("error", "test"))
	b.Offer(rec(7))

	if b.Peek().Seq != 7 || b.Peek().Seq != 7 {
		t.Fatal("repeated Peek changed the head")
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d after Peek, want 1", b.Len())
	}
}

func TestBuffer_AckUnknownSeq(t *testing.T) {
	b, _ := New(10, nil, logx.NewLogger("error", "test"))
	b.Offer(rec(1))

	b.Ack(99)
	if b.Len() != 1 {
		t.Errorf("Len = %d after acking unknown seq, want 1", b.Len())
	}
	b.Ack(1)
	b.Ack(1)
	if b.Len() != 0 {
		t.Errorf("Len = %d after double ack, want 0", b.Len())
	}
}

func TestBuffer_EmptyPeek(t *testing.T) {
	b, _ := New(10, nil, logx.NewLogger("error", "test"))
	if b.Peek() != nil {
		t.Error("Peek on empty buffer returned a record")
	}
	if b.MaxSeq() != 0 {
		t.Errorf("MaxSeq on empty buffer = %d, want 0", b.MaxSeq())
	}
}

func TestBuffer_MaxSeq(t *testing.T) {
	b, _ := New(10, nil, logx.NewLogger("error", "test"))
	b.Offer(rec(5))
	b.Offer(rec(12))
	b.Offer(rec(9))

	if b.MaxSeq() != 12 {
		t.Errorf("MaxSeq = %d, want 12", b.MaxSeq())
	}
}
