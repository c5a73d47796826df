// Package journal implements the optional, disabled-by-default
// crash-forensics sink for FOUND tasks: an append-only bbolt bucket
// written once per successful submission and never read back by the
// running process (SPEC_FULL.md §4.7 domain-stack addition; grounded
// on the teacher's bolt.DB-backed account/job/share buckets in
// pool/client.go and pool_test.go's openDB/createBuckets helpers).
package journal

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/coreos/bbolt"

	"github.com/alephium/alphaminer/internal/task"
)

var submissionsBucket = []byte("submissions")

// Journal appends one record per FOUND task to a bbolt database.
type Journal struct {
	db *bolt.DB
}

// Open creates or opens the journal database at path, creating the
// submissions bucket if it does not already exist.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(submissionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create submissions bucket: %w", err)
	}
	return &Journal{db: db}, nil
}

// record is the on-disk shape of one journal entry.
type record struct {
	TaskID     uint64    `json:"task_id"`
	From       uint32    `json:"from"`
	To         uint32    `json:"to"`
	Nonce      string    `json:"nonce"`
	HashCount  uint64    `json:"hash_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Append records t, which must have Status stats.StatusFound; the
// scheduler only calls this for FOUND tasks.
func (j *Journal) Append(t task.Task) error {
	rec := record{
		TaskID:     t.ID,
		From:       t.Job.From,
		To:         t.Job.To,
		Nonce:      hex.EncodeToString(t.Nonce[:]),
		HashCount:  t.HashCount,
		RecordedAt: time.Now(),
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(submissionsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return b.Put(key[:], buf)
	})
}

// Close releases the underlying database file.
func (j *Journal) Close() error {
	return j.db.Close()
}
