// Package validation holds the jellydator/validation rules shared by config and
// the key store models.
package validation

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

// WrapValidationError marks err as ErrInvalidInput. The original error stays in
// the chain so validation.Errors can still be extracted with errors.As.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
}

// NoNullByte rejects strings containing 0x00. User ids and field names are joined
// with a zero byte to build associated data.
var NoNullByte = validation.NewStringRuleWithError(
	func(s string) bool { return !strings.ContainsRune(s, 0) },
	validation.NewError("validation_no_null_byte", "must not contain null bytes"),
)

// OneOf accepts only the listed values.
func OneOf[T ~string](values ...T) validation.Rule {
	allowed := make([]any, len(values))
	names := make([]string, len(values))
	for i, v := range values {
		allowed[i] = v
		names[i] = string(v)
	}
	return validation.In(allowed...).Error("must be one of: " + strings.Join(names, ", "))
}

// URLScheme accepts absolute URLs whose scheme is one of schemes. Empty values
// pass so the rule composes with validation.Required.
func URLScheme(schemes ...string) validation.Rule {
	return validation.NewStringRuleWithError(
		func(s string) bool {
			u, err := url.Parse(s)
			return err == nil && u.Host != "" && slices.Contains(schemes, u.Scheme)
		},
		validation.NewError(
			"validation_url_scheme",
			"must be a URL with scheme "+strings.Join(schemes, " or "),
		),
	)
}
