package models

import (
	"time"

	profilemodels "prodir/internal/profile/models"
	"prodir/pkg/domain"
)

// Snapshot is the public, read-only copy of a profile taken at publish time.
// There is at most one per profile; republishing overwrites it.
type Snapshot struct {
	ID           domain.ProfileID     `json:"id"`
	Fields       profilemodels.Fields `json:"fields"`
	Region       string               `json:"region,omitempty"`
	Category     string               `json:"category,omitempty"`
	AvgRating    float64              `json:"avg_rating"`
	ReviewsCount int                  `json:"reviews_count"`
	PublishedAt  time.Time            `json:"published_at"`
}

// FromProfile copies the publishable view of p.
func FromProfile(p *profilemodels.Profile, publishedAt time.Time) *Snapshot {
	return &Snapshot{
		ID:           p.ID,
		Fields:       p.Fields.Clone(),
		Region:       p.Region,
		Category:     p.Category,
		AvgRating:    p.AvgRating,
		ReviewsCount: p.ReviewsCount,
		PublishedAt:  publishedAt.UTC().Truncate(time.Microsecond),
	}
}
