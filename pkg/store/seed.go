package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"socialstore/pkg/logger"
	"socialstore/pkg/validation"
)

// The bundled seed payload: a mapping from collection name to records.
// A deployment may point SetSeedSource at a different JSON document.
//
//go:embed seed.json
var bundledSeed []byte

var seedSource string

// SetSeedSource overrides the bundled seed payload with a JSON file on
// disk. Call before SeedIfNeeded.
func SetSeedSource(path string) { seedSource = path }

const seededMetaKey = "seeded"

// SeedIfNeeded runs Seed once per store: it is a no-op whenever the
// meta seeded marker is present. Returns whether seeding ran.
func SeedIfNeeded(ctx context.Context) (bool, error) {
	_, seeded, err := Get(ctx, "meta", seededMetaKey)
	if err != nil {
		return false, err
	}
	if seeded {
		return false, nil
	}
	if err := Seed(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Seed loads the seed payload and writes every provided collection
// except meta in one all-or-nothing batch, then marks meta.seeded and
// appends one audit entry in the same batch. A failed seed leaves no
// partial state.
func Seed(ctx context.Context) error {
	raw := bundledSeed
	if seedSource != "" {
		b, err := os.ReadFile(seedSource)
		if err != nil {
			return fmt.Errorf("failed to read seed source %s: %w", seedSource, err)
		}
		raw = b
	}
	var payload map[string][]Record
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid seed payload: %w", err)
	}

	total := 0
	seededCollections := []string{}
	err := func() error {
		mu.Lock()
		defer mu.Unlock()
		if err := lifecycleErrLocked(ctx); err != nil {
			return err
		}
		b := db.NewBatch()
		defer b.Close()
		for _, def := range collections {
			if def.Name == "meta" {
				continue
			}
			recs := payload[def.Name]
			if len(recs) == 0 {
				continue
			}
			for _, rec := range recs {
				if err := validation.ValidateRecord(def.Name, rec); err != nil {
					return fmt.Errorf("%w: seed %s: %v", ErrInvalidRecord, def.Name, err)
				}
				key, err := recordKeyValue(def, rec)
				if err != nil {
					return fmt.Errorf("seed %s: %w", def.Name, err)
				}
				idx, err := indexKeys(def, key, rec)
				if err != nil {
					return fmt.Errorf("seed %s: %w", def.Name, err)
				}
				data, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("seed %s: %w", def.Name, err)
				}
				_ = b.Set(recordKey(def.Name, key), data, nil)
				for _, ik := range idx {
					_ = b.Set(ik, nil, nil)
				}
			}
			total += len(recs)
			seededCollections = append(seededCollections, def.Name)
		}
		for name := range payload {
			if _, ok := lookupCollection(name); !ok {
				logger.Warn("seed_unknown_collection_skipped", "collection", name)
			}
		}

		marker := Record{"key": seededMetaKey, "value": true}
		md, _ := json.Marshal(marker)
		_ = b.Set(recordKey("meta", seededMetaKey), md, nil)

		seq := logSeq + 1
		if err := appendAudit(b, seq, "seed", map[string]interface{}{"collections": seededCollections, "total": total}); err != nil {
			return err
		}
		if err := commit(b, "seed", "*"); err != nil {
			return err
		}
		logSeq = seq
		return nil
	}()
	if err != nil {
		return err
	}
	logger.Info("store_seeded", "collections", len(seededCollections), "records", total)
	for _, name := range seededCollections {
		publish(Event{Name: ChangeEvent(name), Action: "seed", Collection: name})
	}
	publish(Event{Name: ChangeEvent(LogsCollection), Action: "seed", Collection: LogsCollection})
	return nil
}
