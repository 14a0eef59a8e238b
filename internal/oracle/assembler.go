package oracle

import (
	"fmt"

	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/pkg/utils"
)

// Assemble turns ranker rows into similarity matches for scopeID. Order is
// kept and rows are not deduplicated. A row lacking id, title or score fails
// the whole batch with errs.ErrMalformedRow.
func Assemble(scopeID int64, rows []Row) ([]models.SimilarityMatch, error) {
	matches := make([]models.SimilarityMatch, 0, len(rows))
	for i, r := range rows {
		switch {
		case r.ID == nil:
			return nil, fmt.Errorf("%w: row %d has no id", errs.ErrMalformedRow, i)
		case r.Title == nil:
			return nil, fmt.Errorf("%w: row %d has no title", errs.ErrMalformedRow, i)
		case r.Score == nil:
			return nil, fmt.Errorf("%w: row %d has no score", errs.ErrMalformedRow, i)
		}
		matches = append(matches, models.SimilarityMatch{
			Score: *r.Score,
			Artwork: &models.Artwork{
				ID:               *r.ID,
				ExhibitionID:     scopeID,
				Title:            *r.Title,
				Artist:           utils.Deref(r.Artist, ""),
				Description:      r.Description,
				ImageURL:         r.ImageURL,
				ProductionYear:   r.ProductionYear,
				Materials:        r.Materials,
				Dimensions:       r.Dimensions,
				ManagementNumber: r.ManagementNumber,
				IsCurrent:        r.IsCurrent,
			},
		})
	}
	return matches, nil
}
