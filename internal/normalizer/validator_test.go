package normalizer

import (
	"errors"
	"testing"

	"toolharvest/internal/models"
)

func completeTool() models.Tool {
	return models.Tool{
		Name:             "Tool A",
		ShortDescription: "Writes things for you.",
		WebsiteURL:       "https://example.com",
		LogoURL:          "https://cdn.example.com/1_2_3.webp",
	}
}

func TestNewValidator(t *testing.T) {
	v := NewValidator()
	if v == nil {
		t.Fatal("NewValidator returned nil")
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(completeTool()); err != nil {
		t.Errorf("Validate returned unexpected error for complete tool: %v", err)
	}
}

func TestValidator_Validate_Errors(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		mutate  func(*models.Tool)
		wantErr error
	}{
		{"missing name", func(t *models.Tool) { t.Name = "" }, ErrMissingName},
		{"missing short description", func(t *models.Tool) { t.ShortDescription = "" }, ErrMissingShortDescription},
		{"missing website", func(t *models.Tool) { t.WebsiteURL = "" }, ErrMissingWebsiteURL},
		{"missing logo", func(t *models.Tool) { t.LogoURL = "" }, ErrMissingLogoURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := completeTool()
			tt.mutate(&tool)

			if err := v.Validate(tool); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
