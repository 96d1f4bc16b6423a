// Package screening decides whether rating text or the submitting account must
// be rejected outright or queued for moderation.
package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aimd54/addon-ratings/internal/cache"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

const deniedWordsKey = "ratings:denied-words:v1"

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// WordStore is the persistent source of denied words.
type WordStore interface {
	ListDeniedWords() ([]models.DeniedRatingWord, error)
	SaveDeniedWord(word *models.DeniedRatingWord) error
	DeleteDeniedWord(word string) error
}

// Word is one cached denied word.
type Word struct {
	Word       string `json:"word"`
	Moderation bool   `json:"moderation"`
}

// MatchResult holds the denied words found in a body, split by policy.
type MatchResult struct {
	Denied    []string
	Moderated []string
}

// Rejected reports whether the body must be refused.
func (m *MatchResult) Rejected() bool {
	return len(m.Denied) > 0
}

// NeedsModeration reports whether the body is accepted but must be flagged.
func (m *MatchResult) NeedsModeration() bool {
	return len(m.Denied) == 0 && len(m.Moderated) > 0
}

// DeniedWords is a read-through cache over the denied word table.
type DeniedWords struct {
	store WordStore
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewDeniedWords creates the denied word cache.
func NewDeniedWords(store WordStore, c cache.Cache, ttl time.Duration, log *logger.Logger) *DeniedWords {
	return &DeniedWords{store: store, cache: c, ttl: ttl, log: log}
}

// Get returns the denied word list, loading it from the store on a cache miss.
// Cache failures fall back to the store.
func (d *DeniedWords) Get(ctx context.Context) ([]Word, error) {
	raw, err := d.cache.Get(ctx, deniedWordsKey)
	if err != nil {
		d.log.Warn().Err(err).Msg("Denied word cache unavailable, reading from database")
	} else if raw != "" {
		var words []Word
		if err := json.Unmarshal([]byte(raw), &words); err == nil {
			return words, nil
		}
		d.log.Warn().Msg("Discarding corrupt denied word cache entry")
	}

	rows, err := d.store.ListDeniedWords()
	if err != nil {
		return nil, fmt.Errorf("failed to load denied words: %w", err)
	}
	words := make([]Word, 0, len(rows))
	for _, row := range rows {
		words = append(words, Word{Word: strings.ToLower(row.Word), Moderation: row.Moderation})
	}

	if data, err := json.Marshal(words); err == nil {
		if err := d.cache.Set(ctx, deniedWordsKey, data, d.ttl); err != nil {
			d.log.Warn().Err(err).Msg("Failed to cache denied words")
		}
	}
	return words, nil
}

// Invalidate drops the cached list so the next Get reloads it.
func (d *DeniedWords) Invalidate(ctx context.Context) error {
	if err := d.cache.Del(ctx, deniedWordsKey); err != nil {
		return fmt.Errorf("failed to invalidate denied words: %w", err)
	}
	return nil
}

// Add stores a denied word and invalidates the cache.
func (d *DeniedWords) Add(ctx context.Context, word string, moderation bool) (*models.DeniedRatingWord, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return nil, fmt.Errorf("denied word must not be empty")
	}
	row := &models.DeniedRatingWord{Word: word, Moderation: moderation}
	if err := d.store.SaveDeniedWord(row); err != nil {
		return nil, err
	}
	return row, d.Invalidate(ctx)
}

// Remove deletes a denied word and invalidates the cache.
func (d *DeniedWords) Remove(ctx context.Context, word string) error {
	if err := d.store.DeleteDeniedWord(strings.ToLower(strings.TrimSpace(word))); err != nil {
		return err
	}
	return d.Invalidate(ctx)
}

// Match checks a body against the denied word list. Entries containing a dot
// are domains and match as substrings; other entries must equal a whole word.
func (d *DeniedWords) Match(ctx context.Context, body string) (*MatchResult, error) {
	words, err := d.Get(ctx)
	if err != nil {
		return nil, err
	}
	return matchWords(words, body), nil
}

func matchWords(words []Word, body string) *MatchResult {
	result := &MatchResult{}
	lowered := strings.ToLower(body)
	tokens := make(map[string]struct{})
	for _, tok := range wordSplit.Split(lowered, -1) {
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}

	for _, w := range words {
		var hit bool
		if strings.Contains(w.Word, ".") {
			hit = strings.Contains(lowered, w.Word)
		} else {
			_, hit = tokens[w.Word]
		}
		if !hit {
			continue
		}
		if w.Moderation {
			result.Moderated = append(result.Moderated, w.Word)
		} else {
			result.Denied = append(result.Denied, w.Word)
		}
	}
	return result
}

// DeniedMessage is the validation error shown when a body contains denied words.
func DeniedMessage(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = fmt.Sprintf("%q", w)
	}
	if len(words) == 1 {
		return "The review text cannot contain the word: " + quoted[0]
	}
	return "The review text cannot contain any of the words: " + strings.Join(quoted, ", ")
}

// MatchedNote is the flag note recorded for moderated words.
func MatchedNote(words []string) string {
	return fmt.Sprintf("Words matched: [%s]", strings.Join(words, ", "))
}
