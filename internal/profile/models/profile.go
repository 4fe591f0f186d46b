package models

import (
	"strings"
	"time"

	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
)

// Fields is the opaque attribute bag of a profile. The workflow never
// interprets it beyond the indexed region and category keys.
type Fields map[string]any

const (
	FieldRegion   = "region"
	FieldCategory = "category"
)

// Clone returns a shallow copy; list values are copied too so snapshots do
// not alias draft slices.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

// String returns the trimmed string value of key, or "" when absent or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return strings.TrimSpace(s)
}

// Profile is the draft record of one professional.
//
// Invariants:
//   - ID is immutable after construction
//   - Status is one of the live statuses
//   - AvgRating == RatingSum / ReviewsCount (0 when ReviewsCount is 0)
//   - Region and Category mirror Fields["region"] and Fields["category"]
//   - AvgRating, ReviewsCount and RatingSum change only through review aggregation
type Profile struct {
	ID           domain.ProfileID `json:"id"`
	Status       Status           `json:"status"`
	Fields       Fields           `json:"fields"`
	Region       string           `json:"region,omitempty"`
	Category     string           `json:"category,omitempty"`
	Prompt       string           `json:"prompt,omitempty"`
	AvgRating    float64          `json:"avg_rating"`
	ReviewsCount int              `json:"reviews_count"`
	RatingSum    int              `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewProfile builds a pending draft from generated or imported fields.
func NewProfile(id domain.ProfileID, fields Fields, prompt string, now time.Time) (*Profile, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "profile id is required")
	}
	if len(fields) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "profile fields cannot be empty")
	}
	p := &Profile{
		ID:        id,
		Status:    StatusPending,
		Fields:    fields.Clone(),
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.SyncIndexed()
	return p, nil
}

// SyncIndexed refreshes the lifted listing columns from Fields.
func (p *Profile) SyncIndexed() {
	p.Region = p.Fields.String(FieldRegion)
	p.Category = p.Fields.String(FieldCategory)
}

// ApplyPatch merges already-normalized fields into the draft. Status and
// derived rating fields are untouched.
func (p *Profile) ApplyPatch(patch Fields, now time.Time) {
	if p.Fields == nil {
		p.Fields = Fields{}
	}
	for k, v := range patch {
		p.Fields[k] = v
	}
	p.SyncIndexed()
	p.UpdatedAt = now
}

// ApplyRating folds one new rating into the running aggregate.
func (p *Profile) ApplyRating(rating int, now time.Time) RatingStats {
	p.RatingSum += rating
	p.ReviewsCount++
	p.AvgRating = float64(p.RatingSum) / float64(p.ReviewsCount)
	p.UpdatedAt = now
	return p.Stats()
}

// Stats returns the derived rating fields.
func (p *Profile) Stats() RatingStats {
	return RatingStats{AvgRating: p.AvgRating, ReviewsCount: p.ReviewsCount}
}

// Clone returns a deep enough copy for stores to hand out.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Fields = p.Fields.Clone()
	return &cp
}

// RatingStats is the aggregate returned by a review submission.
type RatingStats struct {
	AvgRating    float64 `json:"avg_rating"`
	ReviewsCount int     `json:"reviews_count"`
}
