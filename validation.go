package rwportal

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

// ValidateForm runs v.Validate and turns ozzo field errors into a
// validation error that carries a field->message map.
func ValidateForm(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	if errs, ok := err.(validation.Errors); ok {
		for field, fieldErr := range errs {
			if fieldErr != nil {
				fields[field] = fieldErr.Error()
			}
		}
	} else {
		fields["form"] = err.Error()
	}
	return NewValidationError(fields)
}
