package rule

import (
	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
)

func errRequired(field string) error {
	return domainErrors.Newf(domainErrors.KindValidation, "%s is required", field).
		WithContext("field", field)
}

func errTooLong(field string, max int) error {
	return domainErrors.Newf(domainErrors.KindValidation, "%s exceeds %d characters", field, max).
		WithContext("field", field).
		WithContext("max_length", max)
}

func errInvalidType(got string) error {
	return domainErrors.Newf(domainErrors.KindInvalidType, "invalid rule type %q", got).
		WithContext("type", got)
}

func errInvalidScope(got string) error {
	return domainErrors.Newf(domainErrors.KindValidation, "invalid rule scope %q", got).
		WithContext("scope", got)
}

func errScopeMismatch() error {
	return domainErrors.New(domainErrors.KindValidation, "global rules must not carry an owning task")
}

func errNegativeUsage(count int) error {
	return domainErrors.Newf(domainErrors.KindValidation, "usage count must not be negative, got %d", count).
		WithContext("usage_count", count)
}
