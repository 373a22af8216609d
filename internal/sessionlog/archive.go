package sessionlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/pebble/v2"
)

// Archive keeps every session of every room in one Pebble store.
// Keys are room, 0x00, session, 0x00, then the 8-byte big-endian sequence.
type Archive struct {
	db *pebble.DB
}

// OpenArchive opens or creates the store in dir.
func OpenArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Archive{db: db}, nil
}

func archiveKey(room, session string, seq uint64) []byte {
	key := make([]byte, 0, len(room)+len(session)+10)
	key = append(key, room...)
	key = append(key, 0)
	key = append(key, session...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint64(key, seq)
}

func archivePrefix(parts ...string) []byte {
	var key []byte
	for _, p := range parts {
		key = append(key, p...)
		key = append(key, 0)
	}
	return key
}

// upperBound is the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (a *Archive) Write(r Record) error {
	val, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return a.db.Set(archiveKey(r.Room, r.Session, r.Seq), val, pebble.Sync)
}

// Records returns the stored records of one session in sequence order. An
// empty session returns every session of the room.
func (a *Archive) Records(room, session string) ([]Record, error) {
	prefix := archivePrefix(room)
	if session != "" {
		prefix = archivePrefix(room, session)
	}
	it, err := a.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	var out []Record
	for it.First(); it.Valid(); it.Next() {
		var r Record
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, it.Error()
}

// Sessions lists the session ids archived for room.
func (a *Archive) Sessions(room string) ([]string, error) {
	recs, err := a.Records(room, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range recs {
		if !seen[r.Session] {
			seen[r.Session] = true
			out = append(out, r.Session)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
