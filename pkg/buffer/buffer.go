// Package buffer retains telemetry records while no transport is
// available and replays them in order once connectivity returns.
package buffer

import (
	"github.com/markus-lassfolk/trackerd/pkg/logx"
	"github.com/markus-lassfolk/trackerd/pkg/telem"
)

// Buffer is a capacity-bounded FIFO. When full, the oldest record is
// evicted to admit the newest. Records stay in the buffer until Ack
// confirms delivery, so a restart mid-drain redelivers rather than loses
// (duplicates are distinguishable by sequence number).
type Buffer struct {
	capacity int
	records  []*telem.Record
	spool    *Spool
	dropped  uint64
	logger   *logx.Logger
}

// New creates a buffer. spool may be nil when offline storage is
// disabled; otherwise records already spooled from a previous run are
// loaded back in, oldest first.
func New(capacity int, spool *Spool, logger *logx.Logger) (*Buffer, error) {
	b := &Buffer{
		capacity: capacity,
		records:  make([]*telem.Record, 0, capacity),
		spool:    spool,
		logger:   logger,
	}
	if spool != nil {
		pending, err := spool.Load()
		if err != nil {
			return nil, err
		}
		// A capacity reduced since the spool was written evicts here;
		// mirror that to the spool or the excess reloads every restart.
		for _, rec := range pending {
			if evicted := b.offerMemory(rec); evicted != nil {
				b.dropped++
				if err := spool.Delete(evicted.Seq); err != nil {
					logger.Error("failed to remove evicted record from spool", "seq", evicted.Seq, "error", err)
				}
			}
		}
		if len(pending) > 0 {
			logger.Info("recovered spooled records", "count", len(pending))
		}
	}
	return b, nil
}

// Offer appends a record, evicting the oldest when at capacity. Returns
// true when a record was dropped to make room.
func (b *Buffer) Offer(rec *telem.Record) bool {
	evicted := b.offerMemory(rec)
	if b.spool != nil {
		if evicted != nil {
			if err := b.spool.Delete(evicted.Seq); err != nil {
				b.logger.Error("failed to remove evicted record from spool", "seq", evicted.Seq, "error", err)
			}
		}
		if err := b.spool.Put(rec); err != nil {
			b.logger.Error("failed to spool record", "seq", rec.Seq, "error", err)
		}
	}
	if evicted != nil {
		b.dropped++
		b.logger.Warn("offline buffer full, dropped oldest record",
			"dropped_seq", evicted.Seq,
			"total_dropped", b.dropped)
		return true
	}
	return false
}

func (b *Buffer) offerMemory(rec *telem.Record) (evicted *telem.Record) {
	if len(b.records) >= b.capacity {
		evicted = b.records[0]
		copy(b.records, b.records[1:])
		b.records = b.records[:len(b.records)-1]
	}
	b.records = append(b.records, rec)
	return evicted
}

// Peek returns the oldest pending record without removing it. The drain
// protocol is Peek, send, Ack; the record leaves the buffer only after
// the transport confirms delivery.
func (b *Buffer) Peek() *telem.Record {
	if len(b.records) == 0 {
		return nil
	}
	return b.records[0]
}

// Ack removes the record with the given sequence number after confirmed
// delivery. Acked records are never replayed again.
func (b *Buffer) Ack(seq uint64) {
	for i, rec := range b.records {
		if rec.Seq == seq {
			b.records = append(b.records[:i], b.records[i+1:]...)
			break
		}
	}
	if b.spool != nil {
		if err := b.spool.Delete(seq); err != nil {
			b.logger.Error("failed to delete acked record from spool", "seq", seq, "error", err)
		}
	}
}

// Len reports the number of pending records.
func (b *Buffer) Len() int { return len(b.records) }

// Dropped reports how many records were sacrificed to the capacity bound.
func (b *Buffer) Dropped() uint64 { return b.dropped }

// MaxSeq returns the highest pending sequence number, zero when empty.
func (b *Buffer) MaxSeq() uint64 {
	var max uint64
	for _, rec := range b.records {
		if rec.Seq > max {
			max = rec.Seq
		}
	}
	return max
}
