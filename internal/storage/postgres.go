package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/oracle"
)

// rankProcedure is the stored procedure that ranks an exhibition's artworks
// by cosine similarity to a query embedding.
const rankProcedure = "search_artworks_by_exhibition"

// PostgresStorage implements Store on the hosted catalog database, whose
// tables are "Gallery", "Exhibition" and "Artworks" and whose artwork
// embeddings are pgvector columns.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects with dsn and verifies the connection.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

// Backend implements Store.
func (s *PostgresStorage) Backend() string { return config.StorePostgres }

// ListGalleries returns all galleries ordered by id.
func (s *PostgresStorage) ListGalleries(ctx context.Context) ([]models.Gallery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(location, ''), COALESCE(description, '')
		 FROM "Gallery" ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	galleries := []models.Gallery{}
	for rows.Next() {
		var g models.Gallery
		if err := rows.Scan(&g.ID, &g.Name, &g.Location, &g.Description); err != nil {
			return nil, err
		}
		galleries = append(galleries, g)
	}
	return galleries, rows.Err()
}

// ListExhibitions returns the exhibitions of a gallery ordered by id.
func (s *PostgresStorage) ListExhibitions(ctx context.Context, galleryID int64) ([]models.Exhibition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, gallery_id, name, COALESCE(description, ''), COALESCE(info, ''),
		        start_date, end_date, COALESCE(is_now, false), brochure,
		        COALESCE(location, ''), admission_fee
		 FROM "Exhibition" WHERE gallery_id = $1 ORDER BY id`,
		galleryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exhibitions := []models.Exhibition{}
	for rows.Next() {
		var e models.Exhibition
		if err := rows.Scan(&e.ID, &e.GalleryID, &e.Name, &e.Description, &e.Info,
			&e.StartDate, &e.EndDate, &e.IsCurrent, &e.Brochure, &e.Location, &e.AdmissionFee); err != nil {
			return nil, err
		}
		exhibitions = append(exhibitions, e)
	}
	return exhibitions, rows.Err()
}

const postgresArtworkColumns = `id::text, exhibition_id, title, COALESCE(artist, ''), description,
	image_url, production_year::text, ingredients, size, embedding, management_number, is_now`

func scanPostgresArtwork(sc scanner) (*models.Artwork, error) {
	var a models.Artwork
	var emb sql.Null[pgvector.Vector]
	if err := sc.Scan(&a.ID, &a.ExhibitionID, &a.Title, &a.Artist, &a.Description, &a.ImageURL,
		&a.ProductionYear, &a.Materials, &a.Dimensions, &emb, &a.ManagementNumber, &a.IsCurrent); err != nil {
		return nil, err
	}
	if emb.Valid {
		a.Embedding = emb.V.Slice()
	}
	return &a, nil
}

// ListArtworks returns the artworks of an exhibition in catalog order.
func (s *PostgresStorage) ListArtworks(ctx context.Context, exhibitionID int64) ([]models.Artwork, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postgresArtworkColumns+`
		 FROM "Artworks" WHERE exhibition_id = $1
		 ORDER BY management_number NULLS LAST, title`,
		exhibitionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artworks := []models.Artwork{}
	for rows.Next() {
		a, err := scanPostgresArtwork(rows)
		if err != nil {
			return nil, err
		}
		artworks = append(artworks, *a)
	}
	return artworks, rows.Err()
}

// GetArtwork returns an artwork by id.
func (s *PostgresStorage) GetArtwork(ctx context.Context, id string) (*models.Artwork, error) {
	id, err := canonicalArtworkID(id)
	if err != nil {
		return nil, err
	}
	a, err := scanPostgresArtwork(s.db.QueryRowContext(ctx,
		`SELECT `+postgresArtworkColumns+` FROM "Artworks" WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: artwork %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RankArtworks implements oracle.Ranker by calling the ranking procedure.
// Result columns are matched by name, so rows missing id, title or score
// reach the assembler with those fields unset.
func (s *PostgresStorage) RankArtworks(ctx context.Context, scopeID int64, query []float32, limit int) ([]oracle.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT * FROM `+rankProcedure+`($1, $2, $3)`,
		pgvector.NewVector(query), scopeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rankProcedure, err)
	}
	defer rows.Close()
	return scanRankRows(rows)
}

// Ping checks the database connection.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStorage)(nil)
