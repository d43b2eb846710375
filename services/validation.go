package services

import (
	"care-chat/domain"
	"care-chat/errors"
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("participant", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseParticipantID(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidateSendRequest runs the struct rules of a send request and maps the first
// failing field to a domain error wrapped with errors.ErrValidation.
func ValidateSendRequest(req domain.SendMessageRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Validation(err)
	}
	switch fe := fieldErrs[0]; fe.Field() {
	case "Receiver":
		return errors.Validation(fmt.Errorf("%w: %q", errors.ErrInvalidParticipantID, req.Receiver))
	case "Message":
		return errors.Validation(errors.ErrEmptyContent)
	default:
		return errors.Validation(fmt.Errorf("field %s failed on %s", fe.Field(), fe.Tag()))
	}
}
