package persistent

import (
	"github.com/boltdb/bolt"

	"github.com/sushantsondhi/raft-col733/common"
)

var (
	logsBucketName = []byte("logs")
	logMetaBucket = []byte("logmeta")
	commitIndexKey = []byte("commitIndex")
)

// DbLogStore is a BoltDB-backed common.LogStore, grounded on
// raft-col733's DbLogStore (persistent/logstore.go), generalized from a
// single Store/Get/Length surface to the full interface a Raft log
// needs: Contains/LastEntry/GetNextIndex/TruncateAfter for the consistency
// check and log-repair paths, plus a durable commit index.
type DbLogStore struct {
	db *bolt.DB
}

var _ common.LogStore = (*DbLogStore)(nil)

func CreateDbLogStore(dataBaseFilePath string) (*DbLogStore, error) {
	db, err := bolt.Open(dataBaseFilePath, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(logsBucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(logMetaBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DbLogStore{db: db}, nil
}

// Append implements common.LogStore.Append, one Future per entry so
// callers can await durability without holding the peer mutex (spec
// §5). All entries are written in a single Bolt transaction, so every
// future resolves with the same error.
func (d *DbLogStore) Append(entries []common.LogEntry) []*common.Future[error] {
	futures := make([]*common.Future[error], len(entries))
	err := d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logsBucketName)
		for _, entry := range entries {
			val, encErr := encodeToBytes(entry)
			if encErr != nil {
				return encErr
			}
			if putErr := bucket.Put(indexKey(entry.Index), val); putErr != nil {
				return putErr
			}
		}
		return nil
	})
	for i := range futures {
		futures[i] = common.Completed(err)
	}
	return futures
}

func (d *DbLogStore) Get(index common.LogIndex) (*common.LogEntry, error) {
	var entry common.LogEntry
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(logsBucketName).Get(indexKey(index))
		if val == nil {
			return nil
		}
		found = true
		var decErr error
		entry, decErr = decodeLogEntry(val)
		return decErr
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &entry, nil
}

// Contains implements the AppendEntries consistency check:
// the zero TermIndex (log start) is trivially contained.
func (d *DbLogStore) Contains(ti common.TermIndex) bool {
	if ti.Index == common.NoIndex {
		return true
	}
	entry, err := d.Get(ti.Index)
	return err == nil && entry != nil && entry.Term == ti.Term
}

func (d *DbLogStore) LastEntry() (*common.LogEntry, bool) {
	var entry common.LogEntry
	var found bool
	d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logsBucketName).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		found = true
		var err error
		entry, err = decodeLogEntry(v)
		return err
	})
	if !found {
		return nil, false
	}
	return &entry, true
}

func (d *DbLogStore) GetNextIndex() common.LogIndex {
	if entry, ok := d.LastEntry(); ok {
		return entry.Index + 1
	}
	return 1
}

func (d *DbLogStore) GetLastCommittedIndex() common.LogIndex {
	var idx uint64
	d.db.View(func(tx *bolt.Tx) error {
		if val := tx.Bucket(logMetaBucket).Get(commitIndexKey); val != nil {
			idx = bytesToUint64(val)
		}
		return nil
	})
	return common.LogIndex(idx)
}

func (d *DbLogStore) SetLastCommittedIndex(index common.LogIndex) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(logMetaBucket).Put(commitIndexKey, uint64ToBytes(uint64(index)))
	})
}

// TruncateAfter deletes every entry with index > index's
// conflict-resolution rule: a follower discards conflicting suffixes
// before appending the leader's replacement entries.
func (d *DbLogStore) TruncateAfter(index common.LogIndex) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logsBucketName)
		c := bucket.Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			if common.LogIndex(bytesToUint64(k)) <= index {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DbLogStore) Close() error {
	return d.db.Close()
}
