package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid request")

// RequireFields reports the first blank field as an ErrInvalidRequest. Fields
// are checked in the given order.
func RequireFields(fields ...Field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			return fmt.Errorf("%w: '%s' is required", ErrInvalidRequest, f.Name)
		}
	}
	return nil
}

// Field is a named request value.
type Field struct {
	Name  string
	Value string
}

// ValidateURL ensures an absolute http(s) URL.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return errors.New("url must be valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	return nil
}
