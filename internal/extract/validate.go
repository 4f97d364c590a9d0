package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("label", func(fl validator.FieldLevel) bool {
		return validLabel(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register label validation: %v", err))
	}
	return v
}

// Validator exposes the shared validator, including the custom "label" tag,
// so configuration structs can be checked with the same rules.
func Validator() *validator.Validate {
	return validate
}

// Validate checks that the item can be processed at all. Failures are
// ConfigErrors and are never retried.
func (w WorkItem) Validate() error {
	if err := validate.Struct(w); err != nil {
		return ConfigError(fmt.Errorf("%w: %s", ErrInvalidItem, describe(err)))
	}
	u, err := url.Parse(w.URL)
	if err != nil {
		return ConfigError(fmt.Errorf("%w: parse url: %v", ErrInvalidItem, err))
	}
	if !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ConfigError(fmt.Errorf("%w: url %q must be an absolute http(s) URL", ErrInvalidItem, w.URL))
	}
	if !validLabel(w.Label) {
		return ConfigError(fmt.Errorf("%w: label %q must be a single path element", ErrInvalidItem, w.Label))
	}
	return nil
}

// validLabel accepts names that stay inside a directory when used as a
// file stem: no separators, no NUL, not "." or "..".
func validLabel(label string) bool {
	if strings.TrimSpace(label) == "" {
		return false
	}
	if label == "." || label == ".." {
		return false
	}
	return !strings.ContainsAny(label, "/\\\x00")
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
