package persistent

import (
	"github.com/boltdb/bolt"

	"github.com/sushantsondhi/raft-col733/common"
)

var (
	snapshotBucketName = []byte("snapshot")
	latestSnapshotKey = []byte("latest")
	installedSnapshotKey = []byte("installed")
	chunkBucketName = []byte("snapshotChunks")
)

// DbSnapshotStore is new relative to raft-col733, which never
// implemented snapshotting at all. Grounded on Ratis's
// getLatestSnapshot/getLatestInstalledSnapshot pointer pair
// (original_source), stored the same Bolt bucket-per-store way as
// PStore/DbLogStore.
type DbSnapshotStore struct {
	db *bolt.DB
}

var _ common.SnapshotStore = (*DbSnapshotStore)(nil)

func CreateDbSnapshotStore(dataBaseFilePath string) (*DbSnapshotStore, error) {
	db, err := bolt.Open(dataBaseFilePath, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(snapshotBucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(chunkBucketName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DbSnapshotStore{db: db}, nil
}

func encodeTermIndex(ti common.TermIndex) ([]byte, error) {
	return encodeToBytes(ti)
}

func decodeTermIndex(b []byte) (common.TermIndex, error) {
	var ti common.TermIndex
	err := decodeInto(b, &ti)
	return ti, err
}

func (s *DbSnapshotStore) getPointer(key []byte) (*common.TermIndex, error) {
	var ti *common.TermIndex
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(snapshotBucketName).Get(key)
		if val == nil {
			return nil
		}
		decoded, err := decodeTermIndex(val)
		if err != nil {
			return err
		}
		ti = &decoded
		return nil
	})
	return ti, err
}

func (s *DbSnapshotStore) GetLatestSnapshot() (*common.TermIndex, error) {
	return s.getPointer(latestSnapshotKey)
}

func (s *DbSnapshotStore) GetLatestInstalledSnapshot() (*common.TermIndex, error) {
	return s.getPointer(installedSnapshotKey)
}

// InstallChunk persists one chunk-mode InstallSnapshot payload, and on
// the final chunk records it as both the latest and latest-installed
// snapshot, chunk-mode flow.
func (s *DbSnapshotStore) InstallChunk(chunk *common.SnapshotChunk) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(chunkBucketName)
		key := append(indexKey(chunk.Index), uint64ToBytes(uint64(chunk.ChunkIndex))...)
		if err := bucket.Put(key, chunk.Data); err != nil {
			return err
		}
		if !chunk.Done {
			return nil
		}
		ti := common.TermIndex{Term: chunk.Term, Index: chunk.Index}
		encoded, err := encodeTermIndex(ti)
		if err != nil {
			return err
		}
		snap := tx.Bucket(snapshotBucketName)
		if err := snap.Put(latestSnapshotKey, encoded); err != nil {
			return err
		}
		return snap.Put(installedSnapshotKey, encoded)
	})
}

// RecordInstalled marks ti as installed without requiring chunk bytes to
// have passed through this store, for the notify-mode path where the
// state machine fetches the snapshot itself.
func (s *DbSnapshotStore) RecordInstalled(ti common.TermIndex) error {
	encoded, err := encodeTermIndex(ti)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		snap := tx.Bucket(snapshotBucketName)
		if err := snap.Put(latestSnapshotKey, encoded); err != nil {
			return err
		}
		return snap.Put(installedSnapshotKey, encoded)
	})
}

func (s *DbSnapshotStore) Close() error {
	return s.db.Close()
}
