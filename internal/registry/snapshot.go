package registry

import (
	"encoding/binary"
	"fmt"
	"io"

	bolt "go.etcd.io/bbolt"
)

// WriteSnapshot writes the whole bboltDB to w for Raft snapshotting, as a
// sequence of (bucketNameLen, bucketName, numKV, [(keyLen, key, valLen,
// val)]...) records.
func (s *Store) WriteSnapshot(w io.Writer) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if err := writeChunk(w, name); err != nil {
				return fmt.Errorf("write bucket name %s: %w", name, err)
			}
			var count uint64
			b.ForEach(func(k, v []byte) error {
				count++
				return nil
			})
			if err := binary.Write(w, binary.BigEndian, count); err != nil {
				return fmt.Errorf("write key count: %w", err)
			}
			return b.ForEach(func(k, v []byte) error {
				if err := writeChunk(w, k); err != nil {
					return err
				}
				return writeChunk(w, v)
			})
		})
	})
}

// RestoreSnapshot replaces the entire bboltDB state from a snapshot reader.
func (s *Store) RestoreSnapshot(r io.Reader) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var existing [][]byte
		tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			existing = append(existing, append([]byte{}, name...))
			return nil
		})
		for _, name := range existing {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("delete bucket %s: %w", name, err)
			}
		}
		for {
			name, err := readChunk(r)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read bucket name: %w", err)
			}
			b, err := tx.CreateBucket(name)
			if err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
			var count uint64
			if err := binary.Read(r, binary.BigEndian, &count); err != nil {
				return fmt.Errorf("read key count: %w", err)
			}
			for i := uint64(0); i < count; i++ {
				key, err := readChunk(r)
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				val, err := readChunk(r)
				if err != nil {
					return fmt.Errorf("read value: %w", err)
				}
				if err := b.Put(key, val); err != nil {
					return err
				}
			}
		}
	})
}

func writeChunk(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readChunk(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
