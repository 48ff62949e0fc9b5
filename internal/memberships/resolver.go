package memberships

import (
	"errors"
	"sort"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ErrNoLevels is returned when the tier ladder is empty.
var ErrNoLevels = errors.New("no membership levels configured")

// ResolveTier returns the highest level whose MinPoints does not exceed points.
// Points below every threshold resolve to the lowest level.
func ResolveTier(levels []models.MembershipLevel, points int) (*models.MembershipLevel, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}

	sorted := make([]models.MembershipLevel, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPoints > sorted[j].MinPoints
	})

	for i := range sorted {
		if sorted[i].MinPoints <= points {
			level := sorted[i]
			return &level, nil
		}
	}
	lowest := sorted[len(sorted)-1]
	return &lowest, nil
}

// Lowest returns the level with the smallest threshold.
func Lowest(levels []models.MembershipLevel) (*models.MembershipLevel, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}
	lowest := levels[0]
	for _, level := range levels[1:] {
		if level.MinPoints < lowest.MinPoints {
			lowest = level
		}
	}
	return &lowest, nil
}
