// Package hifi maintains a persisted index of file sizes and content hashes
// and answers duplicate, unique and common queries over it.
//
// # Core API
//
// A MetadataStore holds one FileRecord per path. SQLiteStore is the durable
// backend, MemoryStore keeps everything in a B-tree:
//
//	store, err := hifi.CreateSQLiteStore("/home/me/.config/hifi/hifi.db", "md5")
//	defer store.Close()
//
// An Indexer brings the records under a path up to date, re-hashing only
// files whose size changed or whose mtime moved past the last hash:
//
//	hasher, _ := hifi.NewFileHasher(store.HashAlgorithm(), 2<<20)
//	ix, _ := hifi.NewIndexer(store, hasher, hifi.WithEventSink(hifi.LogSink()))
//	run, err := ix.Refresh(ctx, "/data/photos")
//	removed, err := ix.Cleanup(ctx, "/data/photos")
//
// A QueryEngine reads hashed records only:
//
//	qe := hifi.NewQueryEngine(store, nil)
//	for group, err := range qe.Duplicates(ctx) {
//		fmt.Println(group.Hash, group.Files)
//	}
//
// Unique and Common expect the paths they are given to have been refreshed
// and cleaned first; Index.Sync does both.
//
// # Configuration
//
// Config reads ~/.config/hifi/config. OpenIndex wires a store, hasher,
// ignore patterns, metrics and both engines from it:
//
//	cfg, _ := hifi.LoadConfig(dir)
//	idx, err := hifi.OpenIndex(cfg, sink)
//	defer idx.Close()
//
// Enable debug output:
//
//	hifi.SetDebugFlags("scan,hash")
//	hifi.SetVerboseLevel(2)
package hifi
