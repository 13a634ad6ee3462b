package validator

import (
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

func RegisterCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("lat", validateLat)
	validate.RegisterValidation("lng", validateLng)
	validate.RegisterValidation("finite", validateFinite)
	validate.RegisterValidation("notblank", validateNotBlank)
	validate.RegisterValidation("location_type", validateLocationType)
}

func validateLat(fl validator.FieldLevel) bool {
	lat := fl.Field().Float()
	return lat >= -90.0 && lat <= 90.0
}

func validateLng(fl validator.FieldLevel) bool {
	lng := fl.Field().Float()
	return lng >= -180.0 && lng <= 180.0
}

func validateFinite(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// kept as plain strings so this package stays independent of internal/domain
func validateLocationType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "plant", "litter":
		return true
	}
	return false
}
