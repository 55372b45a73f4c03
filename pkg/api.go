package hifi

import (
	"context"
	"errors"
	"fmt"
)

// Index bundles an open store with the components that work on it
type Index struct {
	Config  *Config
	Store   MetadataStore
	Hasher  *FileHasher
	Ignore  *IgnoreManager
	Metrics *Metrics
	Indexer *Indexer
	Query   *QueryEngine

	sink EventSink
}

// OpenIndex opens the database named by cfg, creating it with the configured
// default algorithm when missing. An existing database keeps the algorithm
// it was created with.
func OpenIndex(cfg *Config, sink EventSink) (*Index, error) {
	defer VerboseEnter()()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	all := cfg.GetAllConfig()

	store, err := OpenOrCreateSQLiteStore(all.Database.Path, all.Hash.Default)
	if err != nil {
		return nil, err
	}
	return newIndex(cfg, store, sink)
}

// NewIndex wraps an already open store
func NewIndex(cfg *Config, store MetadataStore, sink EventSink) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newIndex(cfg, store, sink)
}

func newIndex(cfg *Config, store MetadataStore, sink EventSink) (*Index, error) {
	all := cfg.GetAllConfig()
	if sink == nil {
		sink = NopSink()
	}

	bufferSize, err := ParseHumanSize(all.Performance.HashBuffer)
	if err != nil {
		store.Close()
		return nil, &ConfigError{Key: "performance.hash_buffer", Err: err}
	}
	hasher, err := NewFileHasher(store.HashAlgorithm(), bufferSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	ignore := NewIgnoreManager(cfg.IgnoreFilePath())
	if err := ignore.LoadIgnorePatterns(); err != nil {
		store.Close()
		return nil, err
	}

	metrics := NewMetrics()
	indexer, err := NewIndexer(store, hasher,
		WithHashWorkers(all.Performance.HashWorkers),
		WithEventSink(sink),
		WithMetrics(metrics),
		WithIgnoreManager(ignore),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Index{
		Config:  cfg,
		Store:   store,
		Hasher:  hasher,
		Ignore:  ignore,
		Metrics: metrics,
		Indexer: indexer,
		Query:   NewQueryEngine(store, sink),
		sink:    sink,
	}, nil
}

// Sync refreshes and then cleans each path, the precondition for Unique and Common
func (x *Index) Sync(ctx context.Context, paths ...string) ([]*ScanRun, error) {
	var runs []*ScanRun
	for _, path := range paths {
		run, err := x.Indexer.Refresh(ctx, path)
		if err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	if _, err := x.Indexer.Cleanup(ctx, paths...); err != nil {
		return runs, err
	}
	return runs, nil
}

// DatabaseInfo summarises the index and records its size in the metrics
func (x *Index) DatabaseInfo(ctx context.Context, runs int) (*DatabaseInfo, error) {
	info, err := x.Query.DatabaseInfo(ctx, runs)
	if err != nil {
		return nil, err
	}
	x.Metrics.SetIndexedRecords(info.Files)
	return info, nil
}

// Export writes every record to filename as JSON lines
func (x *Index) Export(ctx context.Context, filename string) (int, error) {
	return Export(ctx, x.Store, filename, x.sink)
}

// Close writes the metrics textfile when configured and closes the store
func (x *Index) Close() error {
	var errs []error
	if textfile := x.Config.GetMetricsConfig().Textfile; textfile != "" {
		if err := x.Metrics.WriteTextfile(textfile); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := x.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// InitDebugFlags initialises debug flags - for CLI compatibility
func InitDebugFlags(flagsStr string) {
	if flagsStr != "" {
		SetDebugFlags(flagsStr)
	}
}
