package buffer

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/markus-lassfolk/trackerd/pkg/telem"
)

var spoolBucket = []byte("spool")

// Spool persists buffered records to disk so an outage that spans a
// restart does not silently lose them. Keys are big-endian sequence
// numbers, which keeps bbolt cursor order equal to send order.
type Spool struct {
	db *bolt.DB
}

// OpenSpool opens (or creates) the spool database.
func OpenSpool(path string) (*Spool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open spool %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(spoolBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init spool: %w", err)
	}
	return &Spool{db: db}, nil
}

func (s *Spool) Put(rec *telem.Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(spoolBucket).Put(seqKey(rec.Seq), data)
	})
}

func (s *Spool) Delete(seq uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(spoolBucket).Delete(seqKey(seq))
	})
}

// Load returns all spooled records in sequence order.
func (s *Spool) Load() ([]*telem.Record, error) {
	var records []*telem.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(spoolBucket).ForEach(func(k, v []byte) error {
			rec, err := telem.Decode(v)
			if err != nil {
				// A corrupt entry is dropped, not fatal; the rest of the
				// spool is still deliverable.
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Spool) Close() error { return s.db.Close() }

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
