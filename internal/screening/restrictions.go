package screening

import (
	"fmt"
	"net/netip"
	"path"
	"strings"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// Canned messages shown to restricted users.
const (
	IPRestrictedMessage    = "Multiple submissions violating our policies have been sent from your location. The IP address has been blocked."
	EmailRestrictedMessage = "The email address used for your account is not allowed for submissions."
)

// RestrictionStore is the persistent source of restriction rules.
type RestrictionStore interface {
	IPRestrictions(restrictionType int) ([]models.IPNetworkRestriction, error)
	EmailRestrictions(restrictionType int) ([]models.EmailRestriction, error)
	DomainRestrictions(restrictionType int) ([]models.DisposableEmailDomainRestriction, error)
}

// Subject is who is submitting and from where.
type Subject struct {
	User *models.User
	// IPs is the client address followed by any X-Forwarded-For hops.
	IPs []string
}

// Verdict is the outcome of a restriction check.
type Verdict struct {
	Restricted bool
	// Message is the user-facing text of the first matching restriction class.
	Message string
	// Note names the triggering email and IPs, for moderators only.
	Note string
	// Classes lists the matching restriction classes in check order.
	Classes []string
}

// Restrictions applies email, disposable domain and IP network rules.
type Restrictions struct {
	store RestrictionStore
	log   *logger.Logger
}

// NewRestrictions creates a restriction checker.
func NewRestrictions(store RestrictionStore, log *logger.Logger) *Restrictions {
	return &Restrictions{store: store, log: log}
}

// Deny checks the rating deny rules. A restricted verdict must block the write.
func (r *Restrictions) Deny(s Subject) (*Verdict, error) {
	return r.check(s, models.RestrictionRating)
}

// Moderate checks the rating moderation rules. A restricted verdict flags the rating.
func (r *Restrictions) Moderate(s Subject) (*Verdict, error) {
	return r.check(s, models.RestrictionRatingModerate)
}

func (r *Restrictions) check(s Subject, restrictionType int) (*Verdict, error) {
	v := &Verdict{}
	email := ""
	if s.User != nil {
		email = s.User.Email
	}

	domains, err := r.store.DomainRestrictions(restrictionType)
	if err != nil {
		return nil, err
	}
	if email != "" && domainRestricted(email, domains) {
		v.add("disposable_email_domain", EmailRestrictedMessage)
	}

	patterns, err := r.store.EmailRestrictions(restrictionType)
	if err != nil {
		return nil, err
	}
	if email != "" && emailRestricted(email, patterns) {
		v.add("email", EmailRestrictedMessage)
	}

	networks, err := r.store.IPRestrictions(restrictionType)
	if err != nil {
		return nil, err
	}
	ips := candidateIPs(s)
	if ipRestricted(ips, networks) {
		v.add("ip", IPRestrictedMessage)
	}

	if v.Restricted {
		v.Note = fmt.Sprintf("Restricted by: email=%s, ip=[%s]", email, strings.Join(ips, ", "))
		r.log.Info().
			Int("restriction_type", restrictionType).
			Strs("classes", v.Classes).
			Strs("ips", ips).
			Msg("Restricting rating submission")
	}
	return v, nil
}

func (v *Verdict) add(class, message string) {
	if !v.Restricted {
		v.Message = message
	}
	v.Restricted = true
	v.Classes = append(v.Classes, class)
}

func candidateIPs(s Subject) []string {
	seen := make(map[string]struct{})
	var ips []string
	push := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		if _, ok := seen[raw]; ok {
			return
		}
		seen[raw] = struct{}{}
		ips = append(ips, raw)
	}
	for _, ip := range s.IPs {
		for _, hop := range strings.Split(ip, ",") {
			push(hop)
		}
	}
	if s.User != nil {
		push(s.User.LastLoginIP)
	}
	return ips
}

func ipRestricted(ips []string, networks []models.IPNetworkRestriction) bool {
	for _, n := range networks {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(n.Network))
		if err != nil {
			addr, aerr := netip.ParseAddr(strings.TrimSpace(n.Network))
			if aerr != nil {
				continue
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		for _, raw := range ips {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				continue
			}
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// NormalizeEmail removes dots and any +suffix from the local part.
func NormalizeEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return strings.ToLower(email)
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	local = strings.ReplaceAll(local, ".", "")
	return strings.ToLower(local + "@" + domain)
}

func emailRestricted(email string, patterns []models.EmailRestriction) bool {
	normalized := NormalizeEmail(email)
	for _, p := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(p.EmailPattern))
		if strings.Contains(pattern, "@") {
			pattern = NormalizeEmail(pattern)
		}
		if ok, err := path.Match(pattern, normalized); err == nil && ok {
			return true
		}
	}
	return false
}

func domainRestricted(email string, domains []models.DisposableEmailDomainRestriction) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range domains {
		if strings.ToLower(strings.TrimSpace(d.Domain)) == domain {
			return true
		}
	}
	return false
}
