package knowledge

import "errors"

// Limits enforced on knowledge-base fields.
const (
	// MaxTitleLength bounds knowledge-base titles.
	MaxTitleLength = 200

	// MaxListLimit bounds similarity-search result limits to prevent
	// unbounded queries.
	MaxListLimit = 100
)

// Sentinel errors for store operations. These are part of the Store's
// public API; check with errors.Is().
//
// Example:
//
//	kb, err := store.GetKnowledgeBase(ctx, id)
//	if errors.Is(err, knowledge.ErrNotFound) {
//	    // 404
//	}
var (
	// ErrValidation indicates bad input shape (empty title, wrong
	// embedding dimension, non-positive limit).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced knowledge base, or the
	// kb+source pair, does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates a persistence failure. For batch inserts the
	// transaction is rolled back, so nothing from the batch persists.
	ErrStorage = errors.New("storage failure")
)
