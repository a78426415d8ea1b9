package models

// AuthoritativeCategory is an entry of the externally owned category list.
type AuthoritativeCategory struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug" yaml:"slug"`
}

// CategoryMappingEntry maps an observed category name onto the authoritative list.
type CategoryMappingEntry struct {
	TargetCategoryID *int64 `json:"target_category_id"`
	SourceName       string `json:"source_name"`
	SourceSlug       string `json:"source_slug"`
	IsNew            bool   `json:"is_new"`
}

// CategoryRecord is a category that has to be created downstream.
type CategoryRecord struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	SuggestedMatch string `json:"suggested_match,omitempty"`
}
