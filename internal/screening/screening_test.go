package screening

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
	"github.com/aimd54/addon-ratings/test/mocks"
)

type fakeWordStore struct {
	words []models.DeniedRatingWord
	loads int
}

func (f *fakeWordStore) ListDeniedWords() ([]models.DeniedRatingWord, error) {
	f.loads++
	return f.words, nil
}

func (f *fakeWordStore) SaveDeniedWord(word *models.DeniedRatingWord) error {
	for i := range f.words {
		if f.words[i].Word == word.Word {
			f.words[i] = *word
			return nil
		}
	}
	f.words = append(f.words, *word)
	return nil
}

func (f *fakeWordStore) DeleteDeniedWord(word string) error {
	for i := range f.words {
		if f.words[i].Word == word {
			f.words = append(f.words[:i], f.words[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func newTestDeniedWords(store *fakeWordStore) (*DeniedWords, *mocks.MockCache) {
	c := mocks.NewMockCache()
	return NewDeniedWords(store, c, time.Hour, logger.Nop()), c
}

func TestDeniedWords_MatchPolicy(t *testing.T) {
	store := &fakeWordStore{words: []models.DeniedRatingWord{
		{Word: "spam", Moderation: false},
		{Word: "crap", Moderation: true},
		{Word: "bad.example", Moderation: true},
	}}
	dw, _ := newTestDeniedWords(store)
	ctx := context.Background()

	tests := []struct {
		name      string
		body      string
		denied    []string
		moderated []string
	}{
		{name: "clean", body: "Great add-on"},
		{name: "deny word", body: "this is spam content", denied: []string{"spam"}},
		{name: "case insensitive", body: "SPAM!", denied: []string{"spam"}},
		{name: "substring of word does not match", body: "spammer here"},
		{name: "moderate word", body: "what crap", moderated: []string{"crap"}},
		{name: "domain substring", body: "visit www.bad.example/now", moderated: []string{"bad.example"}},
		{name: "deny and moderate", body: "spam and crap", denied: []string{"spam"}, moderated: []string{"crap"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := dw.Match(ctx, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.denied, res.Denied)
			assert.Equal(t, tt.moderated, res.Moderated)
		})
	}

	res, err := dw.Match(ctx, "spam and crap")
	require.NoError(t, err)
	assert.True(t, res.Rejected())
	assert.False(t, res.NeedsModeration())
}

func TestDeniedWords_ReadThroughAndInvalidate(t *testing.T) {
	store := &fakeWordStore{words: []models.DeniedRatingWord{{Word: "spam"}}}
	dw, c := newTestDeniedWords(store)
	ctx := context.Background()

	_, err := dw.Get(ctx)
	require.NoError(t, err)
	_, err = dw.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)
	assert.True(t, c.Has(deniedWordsKey))

	_, err = dw.Add(ctx, "Junk", false)
	require.NoError(t, err)
	assert.False(t, c.Has(deniedWordsKey))

	res, err := dw.Match(ctx, "junk mail")
	require.NoError(t, err)
	assert.Equal(t, []string{"junk"}, res.Denied)
	assert.Equal(t, 2, store.loads)

	require.NoError(t, dw.Remove(ctx, "junk"))
	res, err = dw.Match(ctx, "junk mail")
	require.NoError(t, err)
	assert.Empty(t, res.Denied)
}

func TestDeniedWords_CacheFailureFallsBackToStore(t *testing.T) {
	store := &fakeWordStore{words: []models.DeniedRatingWord{{Word: "spam"}}}
	dw, c := newTestDeniedWords(store)
	c.Err = errors.New("connection refused")

	res, err := dw.Match(context.Background(), "spam")
	require.NoError(t, err)
	assert.Equal(t, []string{"spam"}, res.Denied)
}

func TestDeniedMessage(t *testing.T) {
	assert.Equal(t, `The review text cannot contain the word: "spam"`, DeniedMessage([]string{"spam"}))
	assert.Equal(t, `The review text cannot contain any of the words: "spam", "junk"`, DeniedMessage([]string{"spam", "junk"}))
	assert.Equal(t, "Words matched: [crap, bad.example]", MatchedNote([]string{"crap", "bad.example"}))
}

type fakeRestrictionStore struct {
	ips     map[int][]models.IPNetworkRestriction
	emails  map[int][]models.EmailRestriction
	domains map[int][]models.DisposableEmailDomainRestriction
}

func (f *fakeRestrictionStore) IPRestrictions(t int) ([]models.IPNetworkRestriction, error) {
	return f.ips[t], nil
}

func (f *fakeRestrictionStore) EmailRestrictions(t int) ([]models.EmailRestriction, error) {
	return f.emails[t], nil
}

func (f *fakeRestrictionStore) DomainRestrictions(t int) ([]models.DisposableEmailDomainRestriction, error) {
	return f.domains[t], nil
}

func TestRestrictions_Deny(t *testing.T) {
	store := &fakeRestrictionStore{
		ips: map[int][]models.IPNetworkRestriction{
			models.RestrictionRating: {{Network: "10.0.0.0/24"}},
		},
		emails: map[int][]models.EmailRestriction{
			models.RestrictionRating: {{EmailPattern: "*@blocked.test"}, {EmailPattern: "john.doe@example.com"}},
		},
		domains: map[int][]models.DisposableEmailDomainRestriction{
			models.RestrictionRating: {{Domain: "mailinator.com"}},
		},
	}
	r := NewRestrictions(store, logger.Nop())

	tests := []struct {
		name    string
		subject Subject
		blocked bool
		message string
	}{
		{
			name:    "clean",
			subject: Subject{User: &models.User{Email: "ok@example.com"}, IPs: []string{"192.168.1.1"}},
		},
		{
			name:    "ip in network",
			subject: Subject{User: &models.User{Email: "ok@example.com"}, IPs: []string{"10.0.0.7"}},
			blocked: true,
			message: IPRestrictedMessage,
		},
		{
			name:    "forwarded-for chain",
			subject: Subject{User: &models.User{Email: "ok@example.com"}, IPs: []string{"192.168.1.1", "8.8.8.8, 10.0.0.9"}},
			blocked: true,
			message: IPRestrictedMessage,
		},
		{
			name:    "last login ip",
			subject: Subject{User: &models.User{Email: "ok@example.com", LastLoginIP: "10.0.0.200"}, IPs: []string{"1.1.1.1"}},
			blocked: true,
			message: IPRestrictedMessage,
		},
		{
			name:    "email glob",
			subject: Subject{User: &models.User{Email: "someone@blocked.test"}},
			blocked: true,
			message: EmailRestrictedMessage,
		},
		{
			name:    "normalized email",
			subject: Subject{User: &models.User{Email: "johndoe+ratings@example.com"}},
			blocked: true,
			message: EmailRestrictedMessage,
		},
		{
			name:    "disposable domain",
			subject: Subject{User: &models.User{Email: "x@mailinator.com"}},
			blocked: true,
			message: EmailRestrictedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := r.Deny(tt.subject)
			require.NoError(t, err)
			assert.Equal(t, tt.blocked, v.Restricted)
			assert.Equal(t, tt.message, v.Message)
		})
	}
}

func TestRestrictions_ModerateUsesOwnType(t *testing.T) {
	store := &fakeRestrictionStore{
		ips: map[int][]models.IPNetworkRestriction{
			models.RestrictionRatingModerate: {{Network: "10.0.0.0/8"}},
		},
	}
	r := NewRestrictions(store, logger.Nop())
	subject := Subject{User: &models.User{Email: "a@b.test"}, IPs: []string{"10.1.2.3"}}

	deny, err := r.Deny(subject)
	require.NoError(t, err)
	assert.False(t, deny.Restricted)

	mod, err := r.Moderate(subject)
	require.NoError(t, err)
	assert.True(t, mod.Restricted)
	assert.Equal(t, "Restricted by: email=a@b.test, ip=[10.1.2.3]", mod.Note)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "johndoe@example.com", NormalizeEmail("john.doe+foo@example.com"))
	assert.Equal(t, "plain@example.com", NormalizeEmail("plain@example.com"))
}

func TestContainsLink(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"Great add-on, works well", false},
		{"see https://foo", true},
		{"go to example.com", true},
		{"go to example%2ecom", true},
		{"server at 192.168.0.1", true},
		{"example dot com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsLink(tt.body), tt.body)
	}
	assert.Equal(t, "a\nb", CleanBody("a<br>b"))
}
