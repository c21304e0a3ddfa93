// persistence/interface.go
package persistence

import "context"

// WordStore is the durable source of secret words. Rooms and scores are never
// persisted.
type WordStore interface {
	ListWords(ctx context.Context) ([]string, error)
	// AddWords inserts words, skipping any that already exist.
	AddWords(ctx context.Context, words []string) error
	Close() error
}
