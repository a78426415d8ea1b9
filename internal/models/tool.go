// Package models defines data structures shared by the crawler, normalizer and reconciler.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiscoveredItem is one entry of the listing discovery set.
type DiscoveredItem struct {
	Identifier       string `json:"identifier"`
	CandidateLogoURL string `json:"candidate_logo_url"`
}

// Tool is a harvested AI-tool listing. The same shape is used for raw detail
// records and for normalized records; DedupKey is only set by the normalizer.
type Tool struct {
	Identifier       string     `json:"identifier,omitempty"`
	Name             string     `json:"name"`
	ShortDescription string     `json:"short_description"`
	FullDescription  string     `json:"full_description"`
	WebsiteURL       string     `json:"website_url"`
	LogoURL          string     `json:"logo_url"`
	Category         string     `json:"category"`
	PricingModel     string     `json:"pricing_model"`
	Platforms        StringList `json:"platforms"`
	FeatureTags      StringList `json:"feature_tags"`
	DedupKey         string     `json:"dedup_key,omitempty"`
}

// StringList is a list of strings that also accepts a comma-separated string
// when decoded from JSON.
type StringList []string

// UnmarshalJSON accepts either ["a","b"] or "a, b".
func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*l = nil

		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("failed to decode list: %w", err)
		}

		*l = items

		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("failed to decode comma-separated list: %w", err)
	}

	*l = SplitList(joined)

	return nil
}

// MarshalJSON always encodes an array, never null.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}

	return json.Marshal([]string(l))
}

// SplitList splits a comma-separated string into its raw parts.
func SplitList(s string) StringList {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	return strings.Split(s, ",")
}
