// Package dataset loads precomputed analysis artifacts from a scenario
// directory and caches them in memory.
//
// An uploaded archive contains ~25 heterogeneous tables (heatmaps, shortage
// tables, fairness and fatigue scores, forecasts) in whichever format the
// analysis engine happened to write: parquet, CSV, XLSX, or JSON. Datasets
// are materialized lazily on first access, deduplicated across concurrent
// requests, and held in a bounded LRU cache. Loaded tables are immutable;
// the cache evicts whole entries and never mutates them.
package dataset
