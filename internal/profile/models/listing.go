package models

import (
	"net/url"
)

// ListFilter narrows a profile listing. Empty fields match everything.
type ListFilter struct {
	Region   string
	Category string
	Status   Status
}

// Matches reports whether p passes the filter.
func (f ListFilter) Matches(p *Profile) bool {
	if f.Region != "" && p.Region != f.Region {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}

// Fingerprint is the cursor scope for this filter.
func (f ListFilter) Fingerprint() string {
	v := url.Values{}
	if f.Region != "" {
		v.Set("region", f.Region)
	}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	return v.Encode()
}
