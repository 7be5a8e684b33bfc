package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"socialstore/pkg/logger"
	"socialstore/pkg/validation"
)

// Record is a JSON-shaped collection record. The engine persists records
// verbatim; it performs no content sanitization beyond schema validation.
type Record = map[string]interface{}

var (
	mu     sync.Mutex
	db     *pebble.DB
	dbPath string
	// logSeq is the last assigned audit log key; mutations advance it
	// under mu only after their batch commits.
	logSeq uint64
)

// Key namespaces. Records live under "c:", index entries under "i:",
// engine-internal markers under "s:". ClearAll wipes "c:" and "i:" but
// leaves "s:" so the schema stamp survives a reset, the way clearing
// object stores leaves the database version untouched.
const (
	recordNS = "c:"
	indexNS  = "i:"
	systemNS = "s:"
)

// Open opens (or creates) the store at the given path and keeps a
// package-level handle. Open is idempotent: if already connected it
// returns nil without touching the existing connection. A store stamped
// with a newer schema version fails with ErrStaleVersion and stays
// closed; every operation then fails until a build that understands the
// stamp opens it.
func Open(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if db != nil {
		return nil
	}
	logger.Info("opening_store", "path", path)
	d, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return err
	}
	if err := upgradeSchema(d); err != nil {
		_ = d.Close()
		return err
	}
	seq, err := lastLogSeq(d)
	if err != nil {
		_ = d.Close()
		return err
	}
	db = d
	dbPath = path
	logSeq = seq
	logger.Info("store_opened", "path", path, "schema_version", SchemaVersion, "log_seq", seq)
	return nil
}

// Close closes the store if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	dbPath = ""
	logger.Info("store_closed")
	return nil
}

// Ready reports whether the store is open and serviceable.
func Ready() bool {
	mu.Lock()
	defer mu.Unlock()
	return db != nil
}

// Path returns the path the store was opened with (empty when closed).
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return dbPath
}

// handle returns the open DB or the lifecycle error.
func handle() (*pebble.DB, error) {
	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return nil, ErrNotOpen
	}
	return db, nil
}

func recordKey(collection, key string) []byte {
	return []byte(recordNS + collection + ":" + key)
}

func recordPrefix(collection string) []byte {
	return []byte(recordNS + collection + ":")
}

func indexPrefix(collection, index, encoded string) []byte {
	return []byte(indexNS + collection + ":" + index + ":" + encoded + ":")
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for iterator bounds.
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}

// encodeIndexValue turns a record field value into a sortable index key
// segment. Integral numbers are zero-padded so time-keyed scans come
// back in chronological order.
func encodeIndexValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	case float64:
		// JSON numbers decode as float64; only integral values index,
		// otherwise 100 and 100.9 would collide under one key
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return "", false
		}
		return fmt.Sprintf("%020d", int64(t)), true
	case int:
		return fmt.Sprintf("%020d", int64(t)), true
	case int64:
		return fmt.Sprintf("%020d", t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return fmt.Sprintf("%020d", i), true
		}
		return "", false
	}
	return "", false
}

// indexKeys computes every index entry key for the record. Multi-valued
// fields contribute one entry per element; absent multi fields are fine.
func indexKeys(def CollectionDef, key string, rec Record) ([][]byte, error) {
	var out [][]byte
	for _, ix := range def.Indexes {
		v, ok := rec[ix.Field]
		if !ok || v == nil {
			if ix.Multi {
				continue
			}
			return nil, fmt.Errorf("%w: missing index field %s", ErrInvalidRecord, ix.Field)
		}
		if ix.Multi {
			elems, err := multiValues(v)
			if err != nil {
				return nil, fmt.Errorf("%w: index field %s: %v", ErrInvalidRecord, ix.Field, err)
			}
			for _, e := range elems {
				enc, ok := encodeIndexValue(e)
				if !ok {
					return nil, fmt.Errorf("%w: unindexable element in %s", ErrInvalidRecord, ix.Field)
				}
				out = append(out, append(indexPrefix(def.Name, ix.Name, enc), key...))
			}
			continue
		}
		enc, ok := encodeIndexValue(v)
		if !ok {
			return nil, fmt.Errorf("%w: unindexable value in %s", ErrInvalidRecord, ix.Field)
		}
		out = append(out, append(indexPrefix(def.Name, ix.Name, enc), key...))
	}
	return out, nil
}

func multiValues(v interface{}) ([]interface{}, error) {
	switch t := v.(type) {
	case []interface{}:
		return t, nil
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("not a list")
}

func recordKeyValue(def CollectionDef, rec Record) (string, error) {
	v, ok := rec[def.KeyField]
	if !ok {
		return "", fmt.Errorf("%w: missing key field %s", ErrInvalidRecord, def.KeyField)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: key field %s must be a non-empty string", ErrInvalidRecord, def.KeyField)
	}
	return s, nil
}

// readRecord fetches and decodes one record outside any batch. Missing
// keys return (nil, false, nil).
func readRecord(d *pebble.DB, collection, key string) (Record, bool, error) {
	v, closer, err := d.Get(recordKey(collection, key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	var rec Record
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, false, fmt.Errorf("corrupt record %s/%s: %w", collection, key, err)
	}
	return rec, true, nil
}

// Get returns the record for key, or ok=false if none exists. Read-only.
func Get(ctx context.Context, collection, key string) (Record, bool, error) {
	if _, ok := lookupCollection(collection); !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	d, err := handle()
	if err != nil {
		return nil, false, err
	}
	return readRecord(d, collection, key)
}

// GetAll returns every record in the collection. Order is key order;
// callers needing another order must sort.
func GetAll(ctx context.Context, collection string) ([]Record, error) {
	if _, ok := lookupCollection(collection); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := handle()
	if err != nil {
		return nil, err
	}
	prefix := recordPrefix(collection)
	iter, err := d.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := []Record{}
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt record at %s: %w", string(iter.Key()), err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

// GetAllBy returns every record whose indexed field equals (or, for
// multi-valued indexes, contains) value. Records referenced by a
// dangling index entry are skipped.
func GetAllBy(ctx context.Context, collection, index string, value interface{}) ([]Record, error) {
	def, ok := lookupCollection(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if _, ok := def.index(index); !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownIndex, index, collection)
	}
	enc, ok := encodeIndexValue(value)
	if !ok {
		return nil, fmt.Errorf("%w: unindexable query value", ErrUnknownIndex)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := handle()
	if err != nil {
		return nil, err
	}
	prefix := indexPrefix(collection, index, enc)
	iter, err := d.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := []Record{}
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(bytes.TrimPrefix(iter.Key(), prefix))
		rec, found, err := readRecord(d, collection, key)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, rec)
		}
	}
	return out, iter.Error()
}

// Count returns the number of records in the collection without
// decoding them.
func Count(ctx context.Context, collection string) (int, error) {
	if _, ok := lookupCollection(collection); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d, err := handle()
	if err != nil {
		return 0, err
	}
	prefix := recordPrefix(collection)
	iter, err := d.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Put inserts or fully replaces the record at its key. The write, its
// index maintenance and the audit entry commit in one batch; on success
// the collection's change event and logs:change are published, after the
// commit. Returns the stored record.
func Put(ctx context.Context, collection string, rec Record) (Record, error) {
	def, ok := lookupCollection(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if collection == LogsCollection {
		return nil, fmt.Errorf("%w: %s", ErrReadOnlyCollection, collection)
	}
	if err := validation.ValidateRecord(collection, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	key, err := recordKeyValue(def, rec)
	if err != nil {
		return nil, err
	}
	newIdx, err := indexKeys(def, key, rec)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	// Commit under mu, publish after release so subscribers may read back.
	err = func() error {
		mu.Lock()
		defer mu.Unlock()
		if err := lifecycleErrLocked(ctx); err != nil {
			return err
		}
		old, hadOld, err := readRecord(db, collection, key)
		if err != nil {
			return err
		}
		b := db.NewBatch()
		defer b.Close()
		if hadOld {
			oldIdx, ixErr := indexKeys(def, key, old)
			if ixErr != nil {
				logger.Warn("old_index_keys_skipped", "collection", collection, "key", key, "error", ixErr)
			}
			for _, ik := range oldIdx {
				_ = b.Delete(ik, nil)
			}
		}
		_ = b.Set(recordKey(collection, key), data, nil)
		for _, ik := range newIdx {
			_ = b.Set(ik, nil, nil)
		}
		seq := logSeq + 1
		if err := appendAudit(b, seq, "put", map[string]interface{}{"collection": collection, "record": rec}); err != nil {
			return err
		}
		if err := commit(b, "put", collection); err != nil {
			return err
		}
		logSeq = seq
		return nil
	}()
	if err != nil {
		return nil, err
	}
	logger.Debug("record_put", "collection", collection, "key", key)
	publish(Event{Name: ChangeEvent(collection), Action: "put", Collection: collection, Key: key})
	publish(Event{Name: ChangeEvent(LogsCollection), Action: "put", Collection: LogsCollection})
	return rec, nil
}

// BulkPut writes many records in one atomic batch: all stored or none.
// One audit entry summarizing the count, one change notification.
func BulkPut(ctx context.Context, collection string, recs []Record) error {
	def, ok := lookupCollection(collection)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if collection == LogsCollection {
		return fmt.Errorf("%w: %s", ErrReadOnlyCollection, collection)
	}
	type staged struct {
		key  string
		data []byte
		idx  [][]byte
	}
	stages := make([]staged, 0, len(recs))
	for _, rec := range recs {
		if err := validation.ValidateRecord(collection, rec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		key, err := recordKeyValue(def, rec)
		if err != nil {
			return err
		}
		idx, err := indexKeys(def, key, rec)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		stages = append(stages, staged{key: key, data: data, idx: idx})
	}

	err := func() error {
		mu.Lock()
		defer mu.Unlock()
		if err := lifecycleErrLocked(ctx); err != nil {
			return err
		}
		b := db.NewBatch()
		defer b.Close()
		for _, st := range stages {
			old, hadOld, err := readRecord(db, collection, st.key)
			if err != nil {
				return err
			}
			if hadOld {
				oldIdx, ixErr := indexKeys(def, st.key, old)
				if ixErr != nil {
					logger.Warn("old_index_keys_skipped", "collection", collection, "key", st.key, "error", ixErr)
				}
				for _, ik := range oldIdx {
					_ = b.Delete(ik, nil)
				}
			}
			_ = b.Set(recordKey(collection, st.key), st.data, nil)
			for _, ik := range st.idx {
				_ = b.Set(ik, nil, nil)
			}
		}
		seq := logSeq + 1
		if err := appendAudit(b, seq, "bulkPut", map[string]interface{}{"collection": collection, "count": len(recs)}); err != nil {
			return err
		}
		if err := commit(b, "bulkPut", collection); err != nil {
			return err
		}
		logSeq = seq
		return nil
	}()
	if err != nil {
		return err
	}
	logger.Info("records_bulk_put", "collection", collection, "count", len(recs))
	publish(Event{Name: ChangeEvent(collection), Action: "bulkPut", Collection: collection, Count: len(recs)})
	publish(Event{Name: ChangeEvent(LogsCollection), Action: "bulkPut", Collection: LogsCollection})
	return nil
}

// Delete removes the record if present; deleting a missing key is not
// an error and still logs and notifies.
func Delete(ctx context.Context, collection, key string) error {
	def, ok := lookupCollection(collection)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if collection == LogsCollection {
		return fmt.Errorf("%w: %s", ErrReadOnlyCollection, collection)
	}

	var hadOld bool
	err := func() error {
		mu.Lock()
		defer mu.Unlock()
		if err := lifecycleErrLocked(ctx); err != nil {
			return err
		}
		old, found, err := readRecord(db, collection, key)
		if err != nil {
			return err
		}
		hadOld = found
		b := db.NewBatch()
		defer b.Close()
		if hadOld {
			_ = b.Delete(recordKey(collection, key), nil)
			oldIdx, ixErr := indexKeys(def, key, old)
			if ixErr != nil {
				logger.Warn("old_index_keys_skipped", "collection", collection, "key", key, "error", ixErr)
			}
			for _, ik := range oldIdx {
				_ = b.Delete(ik, nil)
			}
		}
		seq := logSeq + 1
		if err := appendAudit(b, seq, "delete", map[string]interface{}{"collection": collection, "key": key}); err != nil {
			return err
		}
		if err := commit(b, "delete", collection); err != nil {
			return err
		}
		logSeq = seq
		return nil
	}()
	if err != nil {
		return err
	}
	logger.Debug("record_deleted", "collection", collection, "key", key, "existed", hadOld)
	publish(Event{Name: ChangeEvent(collection), Action: "delete", Collection: collection, Key: key})
	publish(Event{Name: ChangeEvent(LogsCollection), Action: "delete", Collection: LogsCollection})
	return nil
}

// ClearAll empties every collection (indexes included) in one atomic
// batch, then logs a single reset entry in the same batch. It publishes
// db:reset and logs:change, not per-collection events.
func ClearAll(ctx context.Context) error {
	err := func() error {
		mu.Lock()
		defer mu.Unlock()
		if err := lifecycleErrLocked(ctx); err != nil {
			return err
		}
		b := db.NewBatch()
		defer b.Close()
		_ = b.DeleteRange([]byte(recordNS), prefixUpperBound([]byte(recordNS)), nil)
		_ = b.DeleteRange([]byte(indexNS), prefixUpperBound([]byte(indexNS)), nil)
		seq := logSeq + 1
		if err := appendAudit(b, seq, "reset", map[string]interface{}{"collections": len(collections)}); err != nil {
			return err
		}
		if err := commit(b, "reset", "*"); err != nil {
			return err
		}
		logSeq = seq
		return nil
	}()
	if err != nil {
		return err
	}
	logger.Info("store_reset", "collections", len(collections))
	publish(Event{Name: ResetEvent, Action: "reset"})
	publish(Event{Name: ChangeEvent(LogsCollection), Action: "reset", Collection: LogsCollection})
	return nil
}

// lifecycleErrLocked verifies the engine can serve a mutation. Callers
// hold mu. Context cancellation is honored before the commit starts;
// an in-flight commit always runs to completion.
func lifecycleErrLocked(ctx context.Context) error {
	if db == nil {
		return ErrNotOpen
	}
	return ctx.Err()
}

// commit applies the batch durably and accounts for the outcome.
func commit(b *pebble.Batch, op, collection string) error {
	if err := b.Commit(pebble.Sync); err != nil {
		txnFailures.Inc()
		logger.Error("txn_commit_failed", "op", op, "collection", collection, "error", err)
		return fmt.Errorf("transaction failed: %w", err)
	}
	opsTotal.WithLabelValues(op, collection).Inc()
	return nil
}

// appendAudit stages one audit log record (and its by_time index entry)
// into the mutating batch so the log row commits atomically with the
// mutation it describes.
func appendAudit(b *pebble.Batch, seq uint64, action string, payload interface{}) error {
	id := fmt.Sprintf("%020d", seq)
	now := time.Now().UTC().UnixMilli()
	entry := Record{"id": id, "action": action, "payload": payload, "time": now}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	_ = b.Set(recordKey(LogsCollection, id), data, nil)
	enc, _ := encodeIndexValue(now)
	_ = b.Set(append(indexPrefix(LogsCollection, "by_time", enc), id...), nil, nil)
	if logger.Audit != nil {
		logger.Audit.Info("store_audit", "action", action, "id", id)
	}
	return nil
}

// lastLogSeq scans the tail of the logs collection so the audit counter
// stays monotonic across restarts.
func lastLogSeq(d *pebble.DB) (uint64, error) {
	prefix := recordPrefix(LogsCollection)
	iter, err := d.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	key := string(bytes.TrimPrefix(iter.Key(), prefix))
	var seq uint64
	if _, err := fmt.Sscanf(key, "%d", &seq); err != nil {
		return 0, nil
	}
	return seq, nil
}

// From converts any JSON-marshalable value (typically a models struct)
// into a Record via a JSON round-trip.
func From(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// As decodes a Record into a typed models value.
func As(rec Record, out interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// ListKeys returns all raw keys with the given prefix; an empty prefix
// lists the whole keyspace. Low-level helper for the inspect tool.
func ListKeys(prefix string) ([]string, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	var opts pebble.IterOptions
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = prefixUpperBound([]byte(prefix))
	}
	iter, err := d.NewIter(&opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}
