package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/mmbot/pkg/bot"
)

// Journal persists every submitted patch batch, keyed by symbol and a
// process-wide sequence that survives restarts.
type Journal struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
}

func OpenJournal(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db}

	val, closer, err := db.Get(kSeq())
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("read sequence: %w", err)
	default:
		j.seq, err = parseSeq(val)
		closer.Close()
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record appends rec and advances the sequence in one synced batch
func (j *Journal) Record(rec bot.PatchRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal patch record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	next := j.seq + 1
	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(patchKey(rec.Symbol, next), val, nil); err != nil {
		return err
	}
	if err := batch.Set(kSeq(), seqBytes(next), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save patch record: %w", err)
	}
	j.seq = next
	return nil
}

// List returns up to limit records for symbol, newest first
func (j *Journal) List(symbol string, limit int) ([]bot.PatchRecord, error) {
	prefix := patchPrefix(symbol)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []bot.PatchRecord
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var rec bot.PatchRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // Skip invalid entries
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

var _ bot.Recorder = (*Journal)(nil)
