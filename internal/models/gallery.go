// Package models defines the catalog records (galleries, exhibitions, artworks)
// and the per-request similarity match returned by image search.
package models

// Gallery is a venue that hosts exhibitions.
type Gallery struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Location    string `json:"location" db:"location"`
	Description string `json:"description" db:"description"`
}

// GallerySummary is the list projection served by GET /galleries.
type GallerySummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Summary returns the list projection of g.
func (g *Gallery) Summary() GallerySummary {
	return GallerySummary{ID: g.ID, Name: g.Name}
}
