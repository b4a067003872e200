package service

import (
	"regexp"
	"strings"

	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
)

// normalizeVerdict maps the provider's loosely-shaped responses onto the
// three-valued status plus a detail reason. The provider speaks several
// vocabularies (code ok/ko/mb, boolean valid/is_valid, status strings,
// risk levels, disposable/catch-all flags); rules are checked in order
// and the final default guarantees the mapping is total.
func normalizeVerdict(v *ports.Verdict) (domain.VerifyStatus, string) {
	if v == nil {
		return domain.VerifyUnknown, "verification_failed"
	}

	// Specific flags beat the generic accept/reject signals.
	if v.Disposable != nil && *v.Disposable {
		return domain.VerifyRejected, "disposable"
	}
	if v.CatchAll != nil && *v.CatchAll {
		return domain.VerifyUnknown, "catch_all"
	}

	if v.Code == "ok" || boolIs(v.Valid, true) || boolIs(v.IsValid, true) ||
		eqFold(v.Status, "valid") || eqFold(v.Result, "valid") {
		if v.Role != nil && *v.Role {
			return domain.VerifyAccepted, "role_account"
		}
		return domain.VerifyAccepted, detailOr(v.Message, "valid")
	}

	if v.Code == "ko" || boolIs(v.Valid, false) || boolIs(v.IsValid, false) ||
		eqFold(v.Status, "invalid") || eqFold(v.Result, "invalid") {
		return domain.VerifyRejected, detailOr(v.Message, "invalid")
	}

	// mb ("maybe") and its md misspelling both show up in the wild.
	if v.Code == "mb" || v.Code == "md" {
		return domain.VerifyUnknown, detailOr(v.Message, "mailbox_unverifiable")
	}

	switch strings.ToLower(v.Risk) {
	case "high":
		return domain.VerifyRejected, "high_risk"
	case "low":
		return domain.VerifyAccepted, "low_risk"
	case "medium":
		return domain.VerifyUnknown, "medium_risk"
	}

	if v.Error != "" {
		return domain.VerifyUnknown, "api_error"
	}
	if v.Message != "" {
		return domain.VerifyUnknown, snakeCase(v.Message)
	}
	return domain.VerifyUnknown, "unknown_response"
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// isValidEmail applies the same local@domain.tld shape check the
// dashboard always used.
func isValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// firstNameFromEmail derives the display label from the local part:
// first dot/underscore-delimited token.
func firstNameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return "unknown"
	}
	local, _, _ = strings.Cut(local, ".")
	local, _, _ = strings.Cut(local, "_")
	if local == "" {
		return "unknown"
	}
	return local
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func snakeCase(s string) string {
	return whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

func detailOr(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return snakeCase(message)
}

func boolIs(b *bool, want bool) bool {
	return b != nil && *b == want
}

func eqFold(s, want string) bool {
	return strings.EqualFold(s, want)
}
