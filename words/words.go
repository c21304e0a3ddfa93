package words

import (
	"errors"
	"math/rand"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

var ErrEmptyVocabulary = errors.New("vocabulary is empty")

// Builtin is the default vocabulary.
var Builtin = []string{
	"apple", "banana", "car", "dog", "elephant", "flowers", "guitar", "house", "island", "jellyfish",
	"kite", "lemon", "mountain", "notebook", "ocean", "pizza", "queen", "robot", "snake", "table",
}

// Vocabulary picks uniformly at random. Repeats across rounds are allowed.
type Vocabulary struct {
	words []string
	rnd   *rand.Rand
	mutex sync.Mutex
}

func NewVocabulary(list []string, rnd *rand.Rand) (*Vocabulary, error) {
	list = Normalize(list)
	if len(list) == 0 {
		return nil, ErrEmptyVocabulary
	}
	return &Vocabulary{words: list, rnd: rnd}, nil
}

func (v *Vocabulary) Pick() string {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.words[v.rnd.Intn(len(v.words))]
}

func (v *Vocabulary) Len() int {
	return len(v.words)
}

// Normalize trims entries, drops blanks and drops case-insensitive duplicates,
// keeping the first spelling seen.
func Normalize(list []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, w := range list {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := fold.String(w)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	return out
}
