// Package registry owns the global logo-URL-to-owner map that keeps one logo
// from being attached to several tools.
package registry

import (
	"sort"
	"strings"
	"sync"

	"toolharvest/internal/logger"
)

// Precedence decides which logo candidate wins when both the listing page and
// the detail page offer one.
type Precedence string

// Precedence policies.
const (
	PreferListing Precedence = "listing"
	PreferDetail  Precedence = "detail"
)

// Entry is one logo claim.
type Entry struct {
	LogoURL string `json:"logo_url"`
	Owner   string `json:"owner"`
}

// Registry maps a normalized logo URL to the first identifier that claimed it.
// All methods are safe for concurrent use; a claim is a single critical section.
type Registry struct {
	mu        sync.Mutex
	owners    map[string]string
	conflicts int
	log       *logger.Logger
}

// New creates an empty registry.
func New(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}

	return &Registry{
		owners: make(map[string]string),
		log:    log.With("component", "logo_registry"),
	}
}

// Claim resolves the logo an identifier may keep. An empty logo never touches
// the registry. With enabled=false the first observation is recorded and the
// logo is always returned unchanged. With enabled=true a logo already owned by
// another identifier resolves to "".
func (r *Registry) Claim(identifier, logoURL string, enabled bool) string {
	key := Key(logoURL)
	if key == "" {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owner, claimed := r.owners[key]
	if !claimed {
		r.owners[key] = identifier

		return logoURL
	}

	if !enabled || owner == identifier {
		return logoURL
	}

	r.conflicts++
	r.log.Debug("logo already claimed", "logo", key, "owner", owner, "claimant", identifier)

	return ""
}

// ResolveLogo applies the precedence policy to a listing-page logo (already
// claimed during discovery) and a detail-page candidate.
func (r *Registry) ResolveLogo(identifier, listingLogo, detailCandidate string, enabled bool, precedence Precedence) string {
	if precedence == PreferDetail {
		if logo := r.Claim(identifier, detailCandidate, enabled); logo != "" {
			return logo
		}

		return listingLogo
	}

	if listingLogo != "" {
		return listingLogo
	}

	return r.Claim(identifier, detailCandidate, enabled)
}

// Owner returns the identifier owning logoURL.
func (r *Registry) Owner(logoURL string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[Key(logoURL)]

	return owner, ok
}

// Len returns the number of claimed logos.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.owners)
}

// Conflicts returns how many claims were rejected.
func (r *Registry) Conflicts() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.conflicts
}

// Entries returns every claim sorted by logo URL.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.owners))
	for logo, owner := range r.owners {
		entries = append(entries, Entry{LogoURL: logo, Owner: owner})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].LogoURL < entries[j].LogoURL })

	return entries
}

// Key normalizes a logo URL for registry lookups.
func Key(logoURL string) string {
	key := strings.TrimSpace(logoURL)
	if strings.HasPrefix(key, "//") {
		key = "https:" + key
	}

	return key
}
