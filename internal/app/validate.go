package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"tour_booking/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateCmd checks struct tags and reports violations as a validation error.
func validateCmd(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return domain.Wrap(domain.KindValidation, op, err)
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return domain.E(domain.KindValidation, op, "%s", strings.Join(msgs, "; "))
}
