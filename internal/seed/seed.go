// Package seed loads denied words and user restrictions from a YAML file.
package seed

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// File is the seed document.
//
//	denied_words:
//	  - {word: spam, moderation: false}
//	restrictions:
//	  ip_networks:        [{network: 10.0.0.0/8, type: moderate, reason: abuse}]
//	  emails:             [{pattern: "*@spam.example", type: deny}]
//	  disposable_domains: [{domain: mailinator.com, type: deny}]
type File struct {
	DeniedWords  []Word       `yaml:"denied_words"`
	Restrictions Restrictions `yaml:"restrictions"`
}

// Word is one denied word or domain.
type Word struct {
	Word       string `yaml:"word"`
	Moderation bool   `yaml:"moderation"`
}

// Restrictions groups the restriction rules by class.
type Restrictions struct {
	IPNetworks        []Rule `yaml:"ip_networks"`
	Emails            []Rule `yaml:"emails"`
	DisposableDomains []Rule `yaml:"disposable_domains"`
}

// Rule is one restriction. Exactly one of Network, Pattern or Domain is set,
// matching the class it is listed under. Type is "deny" or "moderate".
type Rule struct {
	Network string `yaml:"network"`
	Pattern string `yaml:"pattern"`
	Domain  string `yaml:"domain"`
	Type    string `yaml:"type"`
	Reason  string `yaml:"reason"`
}

// WordWriter stores denied words, invalidating any cached list.
type WordWriter interface {
	Add(ctx context.Context, word string, moderation bool) (*models.DeniedRatingWord, error)
}

// RestrictionWriter stores restriction rules.
type RestrictionWriter interface {
	CreateIPRestriction(row *models.IPNetworkRestriction) error
	CreateEmailRestriction(row *models.EmailRestriction) error
	CreateDomainRestriction(row *models.DisposableEmailDomainRestriction) error
}

// Summary counts what Apply wrote.
type Summary struct {
	Words        int
	Restrictions int
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses a seed file from disk.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Validate checks every entry before anything is written.
func (f *File) Validate() error {
	for i, w := range f.DeniedWords {
		if strings.TrimSpace(w.Word) == "" {
			return fmt.Errorf("denied_words[%d]: word is required", i)
		}
	}
	for i, r := range f.Restrictions.IPNetworks {
		if _, err := restrictionType(r.Type); err != nil {
			return fmt.Errorf("ip_networks[%d]: %w", i, err)
		}
		if _, err := netip.ParsePrefix(r.Network); err != nil {
			return fmt.Errorf("ip_networks[%d]: invalid network %q: %w", i, r.Network, err)
		}
	}
	for i, r := range f.Restrictions.Emails {
		if _, err := restrictionType(r.Type); err != nil {
			return fmt.Errorf("emails[%d]: %w", i, err)
		}
		if r.Pattern == "" {
			return fmt.Errorf("emails[%d]: pattern is required", i)
		}
	}
	for i, r := range f.Restrictions.DisposableDomains {
		if _, err := restrictionType(r.Type); err != nil {
			return fmt.Errorf("disposable_domains[%d]: %w", i, err)
		}
		if r.Domain == "" {
			return fmt.Errorf("disposable_domains[%d]: domain is required", i)
		}
	}
	return nil
}

func restrictionType(name string) (int, error) {
	switch strings.ToLower(name) {
	case "deny":
		return models.RestrictionRating, nil
	case "moderate":
		return models.RestrictionRatingModerate, nil
	default:
		return 0, fmt.Errorf("invalid restriction type %q (valid: deny, moderate)", name)
	}
}

// Apply writes a validated seed document. Rerunning it is harmless.
func Apply(ctx context.Context, f *File, words WordWriter, restrictions RestrictionWriter, log *logger.Logger) (Summary, error) {
	var sum Summary
	for _, w := range f.DeniedWords {
		if _, err := words.Add(ctx, w.Word, w.Moderation); err != nil {
			return sum, fmt.Errorf("failed to seed denied word %q: %w", w.Word, err)
		}
		sum.Words++
	}

	for _, r := range f.Restrictions.IPNetworks {
		t, _ := restrictionType(r.Type)
		prefix, _ := netip.ParsePrefix(r.Network)
		row := &models.IPNetworkRestriction{Network: prefix.Masked().String(), RestrictionType: t, Reason: r.Reason}
		if err := restrictions.CreateIPRestriction(row); err != nil {
			return sum, err
		}
		sum.Restrictions++
	}
	for _, r := range f.Restrictions.Emails {
		t, _ := restrictionType(r.Type)
		row := &models.EmailRestriction{EmailPattern: strings.ToLower(r.Pattern), RestrictionType: t, Reason: r.Reason}
		if err := restrictions.CreateEmailRestriction(row); err != nil {
			return sum, err
		}
		sum.Restrictions++
	}
	for _, r := range f.Restrictions.DisposableDomains {
		t, _ := restrictionType(r.Type)
		row := &models.DisposableEmailDomainRestriction{Domain: strings.ToLower(r.Domain), RestrictionType: t, Reason: r.Reason}
		if err := restrictions.CreateDomainRestriction(row); err != nil {
			return sum, err
		}
		sum.Restrictions++
	}

	log.Info().Int("denied_words", sum.Words).Int("restrictions", sum.Restrictions).Msg("Seed data applied")
	return sum, nil
}
