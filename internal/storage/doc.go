package storage

// Package storage persists room-scoped to-do tasks.
//
// Two drivers are provided:
//   - "file": a single JSON snapshot, handy for development
//   - "sqlite": the default, backed by modernc.org/sqlite
