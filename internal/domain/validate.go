package domain

import (
	"errors"
	"strings"

	govalidator "github.com/go-playground/validator/v10"

	"github.com/DALE-GH/location-tracker/pkg/e"
	"github.com/DALE-GH/location-tracker/pkg/validator"
)

// Validate reports the first invalid field as an e.ErrInvalidInput.
func (l Location) Validate() error {
	return translate(validator.ValidateStruct(l))
}

func (p LocationPatch) Validate() error {
	return translate(validator.ValidateStruct(p))
}

func (q NearbyQuery) Validate() error {
	return translate(validator.ValidateStruct(q))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs govalidator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return e.Invalid(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
	}
	return e.Wrap("validate", e.ErrInvalidInput)
}
