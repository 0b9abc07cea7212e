package util

import "errors"

var (
	// ErrIndexWrite marks a vector store upsert rejection. It is surfaced to
	// the caller of a single-document ingest; batch ingestion catches it per
	// document instead of aborting the batch.
	ErrIndexWrite = errors.New("vector index write failed")

	// ErrIndexDelete marks a delete-by-document failure during a rebuild.
	// Rebuilds log it and proceed; a store with nothing to delete yet must
	// not block ingestion.
	ErrIndexDelete = errors.New("vector index delete failed")

	ErrNoChunks          = errors.New("no chunks to upsert")
	ErrUnknownBackend    = errors.New("unknown vector store backend")
	ErrUnknownSchedule   = errors.New("unknown maintenance schedule")
	ErrNoExtractableText = errors.New("no extractable text in pdf")
)
