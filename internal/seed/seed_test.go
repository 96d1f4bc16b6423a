package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/repository"
	"github.com/aimd54/addon-ratings/internal/screening"
	"github.com/aimd54/addon-ratings/pkg/logger"
	"github.com/aimd54/addon-ratings/test/mocks"
)

const sample = `
denied_words:
  - {word: Spam, moderation: false}
  - {word: bit.ly, moderation: true}
restrictions:
  ip_networks:
    - {network: 10.1.2.3/8, type: moderate, reason: abuse}
  emails:
    - {pattern: "*@Spam.example", type: deny}
  disposable_domains:
    - {domain: mailinator.com, type: deny}
`

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "denied_word:\n  - {word: x}\n"},
		{"empty word", "denied_words:\n  - {word: ' '}\n"},
		{"bad type", "restrictions:\n  emails:\n    - {pattern: a@b, type: block}\n"},
		{"bad network", "restrictions:\n  ip_networks:\n    - {network: 10.0.0.0/33, type: deny}\n"},
		{"missing domain", "restrictions:\n  disposable_domains:\n    - {type: deny}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.DeniedWords)
}

func TestApply(t *testing.T) {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	db := &repository.DB{DB: gormDB}
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	repo := repository.NewScreeningRepository(db)
	words := screening.NewDeniedWords(repo, mocks.NewMockCache(), 0, logger.Nop())

	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	// Applying twice leaves one row per rule.
	for i := 0; i < 2; i++ {
		sum, err := Apply(ctx, f, words, repo, logger.Nop())
		require.NoError(t, err)
		assert.Equal(t, Summary{Words: 2, Restrictions: 3}, sum)
	}

	listed, err := words.Get(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []screening.Word{{Word: "spam"}, {Word: "bit.ly", Moderation: true}}, listed)

	nets, err := repo.IPRestrictions(models.RestrictionRatingModerate)
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, "10.0.0.0/8", nets[0].Network)

	emails, err := repo.EmailRestrictions(models.RestrictionRating)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "*@spam.example", emails[0].EmailPattern)

	domains, err := repo.DomainRestrictions(models.RestrictionRating)
	require.NoError(t, err)
	assert.Len(t, domains, 1)
}
