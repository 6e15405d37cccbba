package persistent

import (
	"github.com/boltdb/bolt"

	"github.com/sushantsondhi/raft-col733/common"
)

var (
	stateBucketName = []byte("state")
	termKey = []byte("currentTerm")
	votedForKey = []byte("votedFor")
)

// PStore is a BoltDB-backed common.MetadataStore, grounded on
// raft-col733's PStore (persistent/persistentstore.go), narrowed from a
// generic Set/Get/GetDefault key-value surface to the single durability
// contract Raft's durability rule needs: term and votedFor are always written in the
// same transaction, so a crash never observes one updated without the
// other.
type PStore struct {
	db *bolt.DB
}

var _ common.MetadataStore = PStore{}

func NewPStore(dataBaseFilePath string) (PStore, error) {
	db, err := bolt.Open(dataBaseFilePath, 0600, nil)
	if err != nil {
		return PStore{}, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucketName)
		return err
	})
	if err != nil {
		return PStore{}, err
	}
	return PStore{db: db}, nil
}

func (store PStore) PersistMetadata(term common.Term, votedFor *common.PeerId) error {
	return store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucketName)
		if err := bucket.Put(termKey, uint64ToBytes(uint64(term))); err != nil {
			return err
		}
		if votedFor == nil {
			return bucket.Delete(votedForKey)
		}
		return bucket.Put(votedForKey, []byte(votedFor.String()))
	})
}

func (store PStore) LoadMetadata() (common.Term, *common.PeerId, error) {
	var term common.Term
	var votedFor *common.PeerId
	err := store.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucketName)
		if val := bucket.Get(termKey); val != nil {
			term = common.Term(bytesToUint64(val))
		}
		if val := bucket.Get(votedForKey); val != nil {
			id, err := common.ParsePeerId(string(val))
			if err != nil {
				return err
			}
			votedFor = &id
		}
		return nil
	})
	return term, votedFor, err
}

func (store PStore) Close() error {
	return store.db.Close()
}
