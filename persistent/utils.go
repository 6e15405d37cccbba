package persistent

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/sushantsondhi/raft-col733/common"
)

func encodeToBytes(v interface{}) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLogEntry(b []byte) (common.LogEntry, error) {
	var entry common.LogEntry
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&entry)
	return entry, err
}

func decodeInto(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func uint64ToBytes(u uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func indexKey(index common.LogIndex) []byte {
	return uint64ToBytes(uint64(index))
}
