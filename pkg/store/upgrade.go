package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"socialstore/pkg/logger"
)

const (
	versionKey       = systemNS + "version"
	collectionMarker = systemNS + "col:"
)

// upgradeSchema runs the version-gated upgrade step exactly once per
// version bump: it writes a marker for each declared collection and
// rebuilds every index entry from the stored records. A fresh store is
// stamped without a rebuild. The whole step commits as one batch, so a
// crash mid-upgrade retries cleanly on the next Open.
func upgradeSchema(d *pebble.DB) error {
	stored, err := storedVersion(d)
	if err != nil {
		return err
	}
	switch {
	case stored == SchemaVersion:
		return nil
	case stored > SchemaVersion:
		logger.Error("store_schema_ahead", "stored", stored, "build", SchemaVersion)
		return ErrStaleVersion
	}

	b := d.NewBatch()
	defer b.Close()
	for _, def := range collections {
		_ = b.Set([]byte(collectionMarker+def.Name), []byte(def.KeyField), nil)
	}
	if stored > 0 {
		// Version bump over existing data: indexes may predate the
		// current specs, so rebuild them wholesale.
		if err := reindexAll(d, b); err != nil {
			return err
		}
	}
	_ = b.Set([]byte(versionKey), []byte(strconv.Itoa(SchemaVersion)), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("schema upgrade failed: %w", err)
	}
	logger.Info("store_schema_upgraded", "from", stored, "to", SchemaVersion)
	return nil
}

// storedVersion returns the schema version stamped on the store, or 0
// for a fresh store.
func storedVersion(d *pebble.DB) (int, error) {
	v, closer, err := d.Get([]byte(versionKey))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version stamp: %w", err)
	}
	return n, nil
}

// reindexAll stages a full index rebuild into the batch: drop the index
// namespace, then re-derive entries from every record.
func reindexAll(d *pebble.DB, b *pebble.Batch) error {
	_ = b.DeleteRange([]byte(indexNS), prefixUpperBound([]byte(indexNS)), nil)
	for _, def := range collections {
		prefix := recordPrefix(def.Name)
		iter, err := d.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
		if err != nil {
			return err
		}
		for iter.First(); iter.Valid(); iter.Next() {
			key := string(iter.Key()[len(prefix):])
			var rec Record
			if err := json.Unmarshal(iter.Value(), &rec); err != nil {
				logger.Warn("reindex_skip_corrupt_record", "key", string(iter.Key()), "error", err)
				continue
			}
			idx, err := indexKeys(def, key, rec)
			if err != nil {
				logger.Warn("reindex_skip_record", "key", string(iter.Key()), "error", err)
				continue
			}
			for _, ik := range idx {
				_ = b.Set(ik, nil, nil)
			}
		}
		if err := iter.Error(); err != nil {
			_ = iter.Close()
			return err
		}
		if err := iter.Close(); err != nil {
			return err
		}
	}
	return nil
}
