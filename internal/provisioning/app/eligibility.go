package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// blockedNameTerms mark shared or system lines (paging zones, ring groups,
// fax bridges and the like) that must never receive a softphone activation.
// Checked in this order; the first hit decides the reported reason.
var blockedNameTerms = []string{
	"Paging",
	"Routing Group",
	"On-Call",
	"Voicemail",
	"Shared",
	"Ringer",
	"Pager",
	"Ring Group",
	"Fax",
}

// serviceDomainToken is the template token the platform uses for its internal
// service domains. Matched as an exact substring, wildcard hashes included.
const serviceDomainToken = "0000.#####.service"

// eligibilityRule is one entry of the ordered screening chain. match returns
// the block reason when the rule fires.
type eligibilityRule struct {
	name  string
	match func(sub *domain.Subscriber) (bool, string)
}

// EligibilityFilter screens subscribers that should not be activated: system
// extensions, shared lines and records missing the fields an activation
// notice needs. Rules are evaluated top to bottom and the first match wins,
// so the reported reason always reflects rule priority.
type EligibilityFilter struct {
	rules  []eligibilityRule
	logger *slog.Logger
}

// NewEligibilityFilter creates the filter with its rule chain.
func NewEligibilityFilter(logger *slog.Logger) *EligibilityFilter {
	return &EligibilityFilter{
		logger: logger.With("component", "eligibility_filter"),
		rules: []eligibilityRule{
			{
				name: "service_code",
				match: func(sub *domain.Subscriber) (bool, string) {
					if sub.ServiceCode != "" {
						return true, fmt.Sprintf("service code %q marks a system extension", sub.ServiceCode)
					}
					return false, ""
				},
			},
			{
				name: "reserved_range",
				match: func(sub *domain.Subscriber) (bool, string) {
					if strings.HasPrefix(sub.Extension, "9") {
						return true, "extension is in the reserved 9xxx range"
					}
					return false, ""
				},
			},
			{
				name: "system_name_term",
				match: func(sub *domain.Subscriber) (bool, string) {
					for _, term := range blockedNameTerms {
						if containsFold(sub.FirstName, term) || containsFold(sub.LastName, term) {
							return true, fmt.Sprintf("name contains %q", term)
						}
					}
					return false, ""
				},
			},
			{
				name: "missing_email",
				match: func(sub *domain.Subscriber) (bool, string) {
					if strings.TrimSpace(sub.Email) == "" {
						return true, "no email address to send an activation notice to"
					}
					return false, ""
				},
			},
			{
				name: "service_domain",
				match: func(sub *domain.Subscriber) (bool, string) {
					if strings.Contains(sub.Domain, serviceDomainToken) {
						return true, fmt.Sprintf("domain %q is a platform service domain", sub.Domain)
					}
					return false, ""
				},
			},
			{
				name: "non_numeric_extension",
				match: func(sub *domain.Subscriber) (bool, string) {
					if len(sub.Extension) == 0 || sub.Extension[0] < '0' || sub.Extension[0] > '9' {
						return true, "extension does not start with a digit"
					}
					return false, ""
				},
			},
			{
				name: "empty_name",
				match: func(sub *domain.Subscriber) (bool, string) {
					if sub.FirstName == "" && sub.LastName == "" {
						return true, "first and last name are both empty"
					}
					return false, ""
				},
			},
		},
	}
}

// Classify decides whether sub may be activated. Pure apart from debug
// logging; the returned reason is empty iff the subscriber passes.
func (f *EligibilityFilter) Classify(sub *domain.Subscriber) domain.BlockDecision {
	for _, rule := range f.rules {
		if hit, reason := rule.match(sub); hit {
			f.logger.Debug("Subscriber blocked", "extension", sub.Extension, "rule", rule.name, "reason", reason)
			return domain.BlockDecision{Blocked: true, Reason: reason}
		}
	}
	return domain.BlockDecision{}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
