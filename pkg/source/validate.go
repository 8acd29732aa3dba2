package source

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidItem wraps every validation failure.
var ErrInvalidItem = errors.New("invalid item")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("absurl", func(fl validator.FieldLevel) bool {
		return IsAbsoluteHTTPURL(fl.Field().String())
	})
	return v
}

// Validate checks an item against the canonical schema and returns it
// unchanged on success.
func Validate(item Item) (Item, error) {
	if err := validate.Struct(item); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return Item{}, fmt.Errorf("%w: field %s failed %q", ErrInvalidItem, fe.Field(), fe.Tag())
		}
		return Item{}, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if item.PublishedAt.IsZero() {
		return Item{}, fmt.Errorf("%w: field PublishedAt is missing", ErrInvalidItem)
	}
	return item, nil
}

// SafeValidate is Validate without the error: nil means the item is rejected.
func SafeValidate(item Item) *Item {
	valid, err := Validate(item)
	if err != nil {
		return nil
	}
	return &valid
}

// IsAbsoluteHTTPURL reports whether s parses as an absolute http(s) URL with a host.
func IsAbsoluteHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
