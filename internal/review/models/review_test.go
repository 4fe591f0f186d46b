package models

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
)

func TestParseRating(t *testing.T) {
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r, err := ParseRating(v)
		require.NoError(t, err)
		assert.Equal(t, int(v), r)
	}
	for _, v := range []float64{0, 6, 2.5, -1, math.NaN(), math.Inf(1)} {
		_, err := ParseRating(v)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument), "rating %v", v)
	}
}

func TestNewReview(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("anonymous by default", func(t *testing.T) {
		r, err := NewReview(domain.NewReviewID(), domain.NewProfileID(), 4, " great ", "", "  ", now)
		require.NoError(t, err)
		assert.Equal(t, DefaultAuthorName, r.AuthorName)
		assert.Equal(t, "great", r.Comment)
	})

	t.Run("comment limit counts characters", func(t *testing.T) {
		_, err := NewReview(domain.NewReviewID(), domain.NewProfileID(), 4, strings.Repeat("é", MaxCommentLength), "", "", now)
		require.NoError(t, err)
		_, err = NewReview(domain.NewReviewID(), domain.NewProfileID(), 4, strings.Repeat("a", MaxCommentLength+1), "", "", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})
}
