package models

// Artwork is a catalog entry belonging to one exhibition. Optional fields are
// pointers (nil = not recorded) and serialize as JSON null; Embedding is nil
// when no vector has been stored.
type Artwork struct {
	ID               string    `json:"id" db:"id"`
	ExhibitionID     int64     `json:"exhibition_id" db:"exhibition_id"`
	Title            string    `json:"title" db:"title"`
	Artist           string    `json:"artist" db:"artist"`
	Description      *string   `json:"description" db:"description"`
	ImageURL         *string   `json:"image_url" db:"image_url"`
	ProductionYear   *string   `json:"production_year" db:"production_year"`
	Materials        *string   `json:"ingredients" db:"ingredients"`
	Dimensions       *string   `json:"size" db:"size"`
	Embedding        []float32 `json:"embedding" db:"embedding"`
	ManagementNumber *int64    `json:"management_number" db:"management_number"`
	IsCurrent        *bool     `json:"is_now" db:"is_now"`
}

// SimilarityMatch pairs an artwork with its similarity score for one query.
// Higher scores are more similar.
type SimilarityMatch struct {
	Score   float64  `json:"score"`
	Artwork *Artwork `json:"artwork"`
}
