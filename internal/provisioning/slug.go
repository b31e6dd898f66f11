package provisioning

import (
	"errors"
	"regexp"

	gosimple "github.com/gosimple/slug"
)

var (
	// ErrInvalidSlug is returned when the subdomain label is malformed.
	ErrInvalidSlug = errors.New("provisioning: invalid slug")

	// ErrReservedSlug is returned for slugs on the reserved list.
	ErrReservedSlug = errors.New("provisioning: reserved slug")

	// ErrSlugExhausted is returned when every suffix candidate is taken.
	ErrSlugExhausted = errors.New("provisioning: slug exhausted")
)

const (
	slugMinLen = 3
	slugMaxLen = 63
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// reservedSlugs are subdomain labels the platform keeps for itself.
var reservedSlugs = map[string]struct{}{
	"www":       {},
	"app":       {},
	"api":       {},
	"admin":     {},
	"mail":      {},
	"ftp":       {},
	"localhost": {},
	"dashboard": {},
	"help":      {},
	"support":   {},
	"blog":      {},
}

// DeriveSlug folds a display name into a subdomain label candidate.
func DeriveSlug(name string) string {
	return gosimple.Make(name)
}

// ValidateSlug checks shape and reservation, not availability.
func ValidateSlug(slug string) error {
	if len(slug) < slugMinLen || len(slug) > slugMaxLen {
		return ErrInvalidSlug
	}
	if !slugPattern.MatchString(slug) {
		return ErrInvalidSlug
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		return ErrReservedSlug
	}
	return nil
}
