package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"socialstore/pkg/logger"
	"socialstore/pkg/store"
)

// inspect opens a store directory offline and dumps collection counts,
// records or the audit tail as JSON. Run it against a stopped server;
// pebble takes an exclusive lock.
func main() {
	var (
		path       string
		collection string
		key        string
		keyPrefix  string
		logsTail   int
	)
	flag.StringVar(&path, "db", "", "store directory (the pebble dir, e.g. <base>/store)")
	flag.StringVar(&collection, "collection", "", "dump every record of this collection")
	flag.StringVar(&key, "key", "", "dump one record (requires -collection)")
	flag.StringVar(&keyPrefix, "keys", "", "list raw keys with this prefix (\"-\" for all)")
	flag.IntVar(&logsTail, "logs", 0, "dump the last N audit entries")
	flag.Parse()

	if path == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	logger.Init()
	if err := store.Open(path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store at %s: %v\n", path, err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")

	switch {
	case keyPrefix != "":
		if keyPrefix == "-" {
			keyPrefix = ""
		}
		keys, err := store.ListKeys(keyPrefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "key scan failed: %v\n", err)
			os.Exit(1)
		}
		for _, k := range keys {
			fmt.Println(k)
		}
	case key != "":
		if collection == "" {
			fmt.Fprintln(os.Stderr, "-key requires -collection")
			os.Exit(2)
		}
		rec, found, err := store.Get(ctx, collection, key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get failed: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Fprintf(os.Stderr, "no record %s/%s\n", collection, key)
			os.Exit(1)
		}
		_ = out.Encode(rec)
	case collection != "":
		recs, err := store.GetAll(ctx, collection)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			os.Exit(1)
		}
		_ = out.Encode(recs)
	case logsTail > 0:
		recs, err := store.GetAll(ctx, store.LogsCollection)
		if err != nil {
			fmt.Fprintf(os.Stderr, "audit read failed: %v\n", err)
			os.Exit(1)
		}
		if len(recs) > logsTail {
			recs = recs[len(recs)-logsTail:]
		}
		_ = out.Encode(recs)
	default:
		counts := map[string]int{}
		for _, name := range store.Collections() {
			n, err := store.Count(ctx, name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "count failed for %s: %v\n", name, err)
				os.Exit(1)
			}
			counts[name] = n
		}
		_ = out.Encode(struct {
			Path        string         `json:"path"`
			Collections map[string]int `json:"collections"`
			DiskBytes   uint64         `json:"diskBytes"`
		}{Path: store.Path(), Collections: counts, DiskBytes: store.DiskUsageBytes()})
	}
}
