package buffer

import (
	"path/filepath"
	"testing"

	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

func openTestSpool(t *testing.T, path string) *Spool {
	t.Helper()
	s, err := OpenSpool(path)
	if err != nil {
		t.Fatalf("OpenSpool failed: %v", err)
	}
	return s
}

func TestSpool_PersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")

	s := openTestSpool(t, path)
	for seq := uint64(1); seq <= 3; seq++ {
		if err := s.Put(rec(seq)); err != nil {
			t.Fatalf("Put(%d) failed: %v", seq, err)
		}
	}
	if err := s.Delete(2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	s.Close()

	s = openTestSpool(t, path)
	defer s.Close()
	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Load returned %d records, want 2", len(records))
	}
	if records[0].Seq != 1 || records[1].Seq != 3 {
		t.Errorf("Load order = [%d %d], want [1 3]", records[0].Seq, records[1].Seq)
	}
}

func TestSpool_LoadOrderMatchesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")
	s := openTestSpool(t, path)
	defer s.Close()

	// Insert out of order; cursor order must still be sequence order.
	for _, seq := range []uint64{300, 5, 1000, 42} {
		if err := s.Put(rec(seq)); err != nil {
			t.Fatalf("Put(%d) failed: %v", seq, err)
		}
	}

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []uint64{5, 42, 300, 1000}
	for i, w := range want {
		if records[i].Seq != w {
			t.Errorf("records[%d].Seq = %d, want %d", i, records[i].Seq, w)
		}
	}
}

func TestBuffer_RecoversSpoolOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")
	logger := logx.NewLogger("error", "test")

	s := openTestSpool(t, path)
	b, err := New(50, s, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b.Offer(rec(10))
	b.Offer(rec(11))
	b.Ack(10)
	s.Close()

	// Simulate a restart mid-drain: seq 11 was never acked.
	s = openTestSpool(t, path)
	defer s.Close()
	b, err = New(50, s, logger)
	if err != nil {
		t.Fatalf("New after reopen failed: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d after recovery, want 1", b.Len())
	}
	if head := b.Peek(); head.Seq != 11 {
		t.Errorf("recovered head seq = %d, want 11", head.Seq)
	}
	if b.MaxSeq() != 11 {
		t.Errorf("MaxSeq = %d, want 11", b.MaxSeq())
	}
}

func TestBuffer_ShrunkCapacityPrunesSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")
	logger := logx.NewLogger("error", "test")

	s := openTestSpool(t, path)
	for seq := uint64(1); seq <= 3; seq++ {
		if err := s.Put(rec(seq)); err != nil {
			t.Fatalf("Put(%d) failed: %v", seq, err)
		}
	}
	s.Close()

	// Reopen with a smaller capacity: the oldest record is evicted and
	// must leave the spool too.
	s = openTestSpool(t, path)
	b, err := New(2, s, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if b.Len() != 2 || b.Peek().Seq != 2 {
		t.Fatalf("recovered buffer = %d records, head %d, want 2 records headed by seq 2", b.Len(), b.Peek().Seq)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", b.Dropped())
	}
	s.Close()

	s = openTestSpool(t, path)
	defer s.Close()
	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("spool holds %d records after pruning, want 2", len(records))
	}
	if records[0].Seq != 2 || records[1].Seq != 3 {
		t.Errorf("spool = [%d %d], want [2 3]", records[0].Seq, records[1].Seq)
	}
}

func TestBuffer_EvictionRemovesSpooledRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")
	logger := logx.NewLogger("error", "test")

	s := openTestSpool(t, path)
	b, err := New(2, s, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b.Offer(rec(1))
	b.Offer(rec(2))
	b.Offer(rec(3)) // evicts seq 1
	s.Close()

	s = openTestSpool(t, path)
	defer s.Close()
	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("spool holds %d records after eviction, want 2", len(records))
	}
	if records[0].Seq != 2 || records[1].Seq != 3 {
		t.Errorf("spool = [%d %d], want [2 3]", records[0].Seq, records[1].Seq)
	}
}
