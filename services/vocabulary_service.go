// services/vocabulary_service.go
package services

import (
	"context"
	"fmt"

	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/persistence"
	"github.com/wfunc/drawserver/words"
)

type VocabularyService struct {
	store persistence.WordStore
}

func NewVocabularyService(store persistence.WordStore) *VocabularyService {
	return &VocabularyService{store: store}
}

// Load returns the stored vocabulary. An empty store is seeded first.
func (s *VocabularyService) Load(ctx context.Context, seed []string) ([]string, error) {
	stored, err := s.store.ListWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list words: %w", err)
	}
	if list := words.Normalize(stored); len(list) > 0 {
		return list, nil
	}

	seed = words.Normalize(seed)
	if len(seed) == 0 {
		return nil, words.ErrEmptyVocabulary
	}
	if err := s.store.AddWords(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed words: %w", err)
	}
	logger.Log.Infof("Seeded vocabulary with %d words", len(seed))
	return seed, nil
}
