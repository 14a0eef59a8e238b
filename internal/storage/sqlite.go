package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/oracle"
	"github.com/hyperjump/docent/internal/vector"
)

// sqliteDriver is go-sqlite3 with cosine_similarity(blob, blob) registered on
// every connection.
const sqliteDriver = "sqlite3_docent"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("cosine_similarity", cosineSimilarity, true)
		},
	})
}

func cosineSimilarity(a, b []byte) (float64, error) {
	va, err := vector.Decode(a)
	if err != nil {
		return 0, err
	}
	vb, err := vector.Decode(b)
	if err != nil {
		return 0, err
	}
	return vector.CosineSimilarity(va, vb)
}

// SQLiteStorage implements Store and Writer on a local SQLite file. Embeddings
// are stored as little-endian float32 blobs.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	inMemory := dbPath == ":memory:"
	if dir := filepath.Dir(dbPath); !inMemory && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS galleries (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS exhibitions (
		id INTEGER PRIMARY KEY,
		gallery_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		info TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		is_now INTEGER NOT NULL DEFAULT 0,
		brochure TEXT,
		location TEXT NOT NULL DEFAULT '',
		admission_fee TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_exhibitions_gallery_id ON exhibitions(gallery_id);

	CREATE TABLE IF NOT EXISTS artworks (
		id TEXT PRIMARY KEY,
		exhibition_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		description TEXT,
		image_url TEXT,
		production_year TEXT,
		ingredients TEXT,
		size TEXT,
		embedding BLOB,
		management_number INTEGER,
		is_now INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_artworks_exhibition_id ON artworks(exhibition_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Backend implements Store.
func (s *SQLiteStorage) Backend() string { return config.StoreSQLite }

// ListGalleries returns all galleries ordered by id.
func (s *SQLiteStorage) ListGalleries(ctx context.Context) ([]models.Gallery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, location, description FROM galleries ORDER BY id`)
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
func (s *SQLiteStorage) ListExhibitions(ctx context.Context, galleryID int64) ([]models.Exhibition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, gallery_id, name, description, info, start_date, end_date,
		        is_now, brochure, location, admission_fee
		 FROM exhibitions WHERE gallery_id = ? ORDER BY id`,
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

const sqliteArtworkColumns = `id, exhibition_id, title, artist, description, image_url,
	production_year, ingredients, size, embedding, management_number, is_now`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteArtwork(sc scanner) (*models.Artwork, error) {
	var a models.Artwork
	var blob []byte
	if err := sc.Scan(&a.ID, &a.ExhibitionID, &a.Title, &a.Artist, &a.Description, &a.ImageURL,
		&a.ProductionYear, &a.Materials, &a.Dimensions, &blob, &a.ManagementNumber, &a.IsCurrent); err != nil {
		return nil, err
	}
	if blob != nil {
		emb, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("artwork %s embedding: %w", a.ID, err)
		}
		a.Embedding = emb
	}
	return &a, nil
}

// ListArtworks returns the artworks of an exhibition in catalog order.
func (s *SQLiteStorage) ListArtworks(ctx context.Context, exhibitionID int64) ([]models.Artwork, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteArtworkColumns+`
		 FROM artworks WHERE exhibition_id = ?
		 ORDER BY management_number IS NULL, management_number, title`,
		exhibitionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artworks := []models.Artwork{}
	for rows.Next() {
		a, err := scanSQLiteArtwork(rows)
		if err != nil {
			return nil, err
		}
		artworks = append(artworks, *a)
	}
	return artworks, rows.Err()
}

// GetArtwork returns an artwork by id.
func (s *SQLiteStorage) GetArtwork(ctx context.Context, id string) (*models.Artwork, error) {
	id, err := canonicalArtworkID(id)
	if err != nil {
		return nil, err
	}
	a, err := scanSQLiteArtwork(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteArtworkColumns+` FROM artworks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: artwork %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RankArtworks implements oracle.Ranker. Artworks without an embedding are
// not ranked.
func (s *SQLiteStorage) RankArtworks(ctx context.Context, scopeID int64, query []float32, limit int) ([]oracle.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, artist, description, image_url, production_year,
		        ingredients, size, management_number, is_now,
		        cosine_similarity(embedding, ?) AS score
		 FROM artworks
		 WHERE exhibition_id = ? AND embedding IS NOT NULL
		 ORDER BY score DESC, id
		 LIMIT ?`,
		vector.Encode(query), scopeID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRankRows(rows)
}

// SaveBatch upserts galleries, exhibitions and artworks in one transaction.
func (s *SQLiteStorage) SaveBatch(ctx context.Context, batch *Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, g := range batch.Galleries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO galleries (id, name, location, description) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, location = excluded.location,
			   description = excluded.description`,
			g.ID, g.Name, g.Location, g.Description,
		); err != nil {
			return fmt.Errorf("gallery %d: %w", g.ID, err)
		}
	}

	for _, e := range batch.Exhibitions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exhibitions (id, gallery_id, name, description, info, start_date, end_date,
			   is_now, brochure, location, admission_fee)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET gallery_id = excluded.gallery_id, name = excluded.name,
			   description = excluded.description, info = excluded.info,
			   start_date = excluded.start_date, end_date = excluded.end_date,
			   is_now = excluded.is_now, brochure = excluded.brochure,
			   location = excluded.location, admission_fee = excluded.admission_fee`,
			e.ID, e.GalleryID, e.Name, e.Description, e.Info, e.StartDate, e.EndDate,
			e.IsCurrent, e.Brochure, e.Location, e.AdmissionFee,
		); err != nil {
			return fmt.Errorf("exhibition %d: %w", e.ID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO artworks (id, exhibition_id, title, artist, description, image_url,
		   production_year, ingredients, size, embedding, management_number, is_now)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET exhibition_id = excluded.exhibition_id,
		   title = excluded.title, artist = excluded.artist,
		   description = excluded.description, image_url = excluded.image_url,
		   production_year = excluded.production_year, ingredients = excluded.ingredients,
		   size = excluded.size, embedding = COALESCE(excluded.embedding, artworks.embedding),
		   management_number = excluded.management_number, is_now = excluded.is_now`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range batch.Artworks {
		id, err := canonicalArtworkID(a.ID)
		if err != nil {
			return fmt.Errorf("%w: artwork id %q is not a UUID", errs.ErrInvalidInput, a.ID)
		}
		var blob []byte
		if len(a.Embedding) > 0 {
			blob = vector.Encode(a.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, id, a.ExhibitionID, a.Title, a.Artist, a.Description,
			a.ImageURL, a.ProductionYear, a.Materials, a.Dimensions, blob, a.ManagementNumber, a.IsCurrent); err != nil {
			return fmt.Errorf("artwork %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SizeBytes reports the on-disk size of the database including its WAL files.
func (s *SQLiteStorage) SizeBytes() (int64, error) {
	if s.path == ":memory:" {
		return 0, nil
	}
	return DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

var (
	_ Store  = (*SQLiteStorage)(nil)
	_ Writer = (*SQLiteStorage)(nil)
)
