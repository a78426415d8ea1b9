package normalizer

import (
	"errors"

	"toolharvest/internal/models"
)

// Completeness errors.
var (
	ErrMissingName             = errors.New("missing name")
	ErrMissingShortDescription = errors.New("missing short description")
	ErrMissingWebsiteURL       = errors.New("missing website url")
	ErrMissingLogoURL          = errors.New("missing logo url")
)

// Validator gates records on completeness.
type Validator struct{}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns the first required field the record lacks.
func (v *Validator) Validate(tool models.Tool) error {
	switch {
	case tool.Name == "":
		return ErrMissingName
	case tool.ShortDescription == "":
		return ErrMissingShortDescription
	case tool.WebsiteURL == "":
		return ErrMissingWebsiteURL
	case tool.LogoURL == "":
		return ErrMissingLogoURL
	}

	return nil
}
