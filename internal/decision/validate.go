package decision

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/model"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateClaim checks the structural shape of a claim.
func validateClaim(v *validator.Validate, c *model.Claim) error {
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Validation("invalid claim", err.Error())
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return apperr.Validation("invalid claim", strings.Join(msgs, "; "))
	}
	if strings.TrimSpace(c.OrderRef) == "" {
		return apperr.Validation("invalid claim", "order_ref is required")
	}
	return c.Strength.Validate()
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "len":
		return fmt.Sprintf("%s must be exactly %s digits", field, fe.Param())
	case "number", "numeric":
		return fmt.Sprintf("%s must contain only digits", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation for '%s'", field, fe.Tag())
	}
}
