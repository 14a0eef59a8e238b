package models

// Exhibition is a time-bounded show within a gallery. It is the scope of an
// image search.
type Exhibition struct {
	ID           int64   `json:"id" db:"id"`
	GalleryID    int64   `json:"gallery_id" db:"gallery_id"`
	Name         string  `json:"name" db:"name"`
	Description  string  `json:"description" db:"description"`
	Info         string  `json:"info" db:"info"`
	StartDate    *Date   `json:"start_date" db:"start_date"`
	EndDate      *Date   `json:"end_date" db:"end_date"`
	IsCurrent    bool    `json:"is_now" db:"is_now"`
	Brochure     *string `json:"brochure" db:"brochure"`
	Location     string  `json:"location" db:"location"`
	AdmissionFee *string `json:"admission_fee" db:"admission_fee"`
}

// ExhibitionSummary is the list projection served by GET /exhibitions.
// Dates are ISO-8601 strings or null.
type ExhibitionSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   *Date  `json:"start_date"`
	EndDate     *Date  `json:"end_date"`
}

// Summary returns the list projection of e.
func (e *Exhibition) Summary() ExhibitionSummary {
	return ExhibitionSummary{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
	}
}
