package indexing

import "errors"

// Sentinel errors for the indexing pipeline.
var (
	// ErrInvalidScope indicates a request missing one of the mandatory
	// scoping keys. Never retried.
	ErrInvalidScope = errors.New("indexing request missing tenant, knowledge base, or document scope")

	// ErrNoChunks indicates a request with an empty chunk list.
	ErrNoChunks = errors.New("indexing request has no chunks")

	// ErrUnsupportedParser indicates the upstream parser cannot handle the
	// document type. Permanent.
	ErrUnsupportedParser = errors.New("unsupported document parser type")

	// ErrSourceMissing indicates the source file disappeared before
	// processing. Permanent.
	ErrSourceMissing = errors.New("source document is missing")

	// ErrAllChunksFailed indicates no chunk survived context generation
	// and embedding.
	ErrAllChunksFailed = errors.New("every chunk failed to process")
)

// Permanent reports whether err must not be retried by the background
// worker. Everything else is treated as transient.
func Permanent(err error) bool {
	return errors.Is(err, ErrInvalidScope) ||
		errors.Is(err, ErrNoChunks) ||
		errors.Is(err, ErrUnsupportedParser) ||
		errors.Is(err, ErrSourceMissing) ||
		errors.Is(err, ErrAllChunksFailed)
}
