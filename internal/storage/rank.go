package storage

import (
	"database/sql"
	"fmt"

	"github.com/hyperjump/docent/internal/oracle"
)

// rowDest returns the scan destination for a ranking result column. Columns
// the row does not carry are discarded.
func rowDest(r *oracle.Row, column string) interface{} {
	switch column {
	case "id":
		return &r.ID
	case "title":
		return &r.Title
	case "artist":
		return &r.Artist
	case "description":
		return &r.Description
	case "image_url":
		return &r.ImageURL
	case "production_year":
		return &r.ProductionYear
	case "ingredients":
		return &r.Materials
	case "size":
		return &r.Dimensions
	case "management_number":
		return &r.ManagementNumber
	case "is_now":
		return &r.IsCurrent
	case "score", "similarity":
		return &r.Score
	default:
		return new(interface{})
	}
}

// scanRankRows reads ranking results by column name, so a column missing
// from the result set leaves the field nil instead of failing the scan.
func scanRankRows(rows *sql.Rows) ([]oracle.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []oracle.Row{}
	for rows.Next() {
		var r oracle.Row
		dest := make([]interface{}, len(columns))
		for i, c := range columns {
			dest[i] = rowDest(&r, c)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
