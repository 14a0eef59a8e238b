package importer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/docent/internal/embedding"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/storage"
)

const sunflowersID = "0b7c6a2e-4c1f-4d8e-9a3b-5f2e1d0c9b8a"

type sheet struct {
	name string
	rows [][]interface{}
}

func writeWorkbook(t *testing.T, path string, sheets ...sheet) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			t.Fatal(err)
		}
		for i := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetSheetRow(s.name, cell, &s.rows[i]); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func catalogSheets(artworks ...[]interface{}) []sheet {
	return []sheet{
		{SheetGallery, [][]interface{}{
			{"id", "name", "location", "description"},
			{1, "Seoul Museum", "Seoul", "Modern art"},
		}},
		{SheetExhibition, [][]interface{}{
			{"id", "gallery_id", "name", "description", "start_date", "end_date", "is_now", "admission_fee"},
			{42, 1, "Impressions", "Light and color", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-06-30", true, ""},
		}},
		{SheetArtworks, append([][]interface{}{
			{"id", "exhibition_id", "title", "artist", "description", "production_year", "management_number", "image_file"},
		}, artworks...)},
	}
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func writePNG(t *testing.T, path string, seed uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*6) ^ seed, G: uint8(y*6) + seed, B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.xlsx")
	writeWorkbook(t, path, catalogSheets(
		[]interface{}{sunflowersID, 42, "Sunflowers", "Vincent van Gogh", "Oil on canvas", 1888, 7, ""},
		[]interface{}{"", 42, "Irises", "", "", "", "", ""},
	)...)

	store := newStore(t)
	ctx := context.Background()
	sum, err := NewImporter(store).ImportFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Galleries != 1 || sum.Exhibitions != 1 || sum.Artworks != 2 || sum.Embedded != 0 {
		t.Errorf("summary = %+v", sum)
	}

	exhibitions, err := store.ListExhibitions(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(exhibitions) != 1 {
		t.Fatalf("expected 1 exhibition, got %d", len(exhibitions))
	}
	e := exhibitions[0]
	if e.StartDate == nil || e.StartDate.String() != "2024-03-01" {
		t.Errorf("start_date = %v (date cells are stored as serial numbers)", e.StartDate)
	}
	if e.EndDate == nil || e.EndDate.String() != "2024-06-30" {
		t.Errorf("end_date = %v", e.EndDate)
	}
	if !e.IsCurrent || e.AdmissionFee != nil {
		t.Errorf("exhibition = %+v", e)
	}

	got, err := store.GetArtwork(ctx, sunflowersID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProductionYear == nil || *got.ProductionYear != "1888" {
		t.Errorf("production_year = %v", got.ProductionYear)
	}
	if got.ManagementNumber == nil || *got.ManagementNumber != 7 {
		t.Errorf("management_number = %v", got.ManagementNumber)
	}

	artworks, err := store.ListArtworks(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(artworks) != 2 {
		t.Fatalf("expected 2 artworks, got %d", len(artworks))
	}
	for _, a := range artworks {
		if _, err := uuid.Parse(a.ID); err != nil {
			t.Errorf("artwork %q has id %q, want a UUID", a.Title, a.ID)
		}
	}
}

type recordingPoints struct {
	artworks []models.Artwork
}

func (r *recordingPoints) UpsertArtworks(_ context.Context, artworks []models.Artwork) (int, error) {
	n := 0
	for _, a := range artworks {
		if len(a.Embedding) > 0 {
			r.artworks = append(r.artworks, a)
			n++
		}
	}
	return n, nil
}

func TestImportFile_Embed(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "images"), 0755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "images", "sunflowers.png"), 1)
	writePNG(t, filepath.Join(dir, "images", "irises.png"), 200)

	path := filepath.Join(dir, "catalog.xlsx")
	writeWorkbook(t, path, catalogSheets(
		[]interface{}{sunflowersID, 42, "Sunflowers", "", "", "", "", "images/sunflowers.png"},
		[]interface{}{"", 42, "Irises", "", "", "", "", "images/irises.png"},
		[]interface{}{"", 42, "Untitled", "", "", "", "", ""},
	)...)

	store := newStore(t)
	ext := embedding.NewExtractor(embedding.NewMockEncoder(16, 32))
	points := &recordingPoints{}
	ctx := context.Background()
	sum, err := NewImporter(store, WithEmbedder(ext), WithPointWriter(points)).ImportFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Embedded != 2 || sum.Points != 2 || len(points.artworks) != 2 {
		t.Errorf("summary = %+v, points = %d", sum, len(points.artworks))
	}

	data, err := os.ReadFile(filepath.Join(dir, "images", "sunflowers.png"))
	if err != nil {
		t.Fatal(err)
	}
	query, err := ext.Extract(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := store.RankArtworks(ctx, 42, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 ranked artworks, got %d", len(rows))
	}
	if *rows[0].ID != sunflowersID {
		t.Errorf("best match = %s, want the same image", *rows[0].Title)
	}
}

func TestImportFile_EmbedFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.xlsx")
	writeWorkbook(t, path, catalogSheets(
		[]interface{}{sunflowersID, 42, "Sunflowers", "", "", "", "", "missing.png"},
	)...)

	store := newStore(t)
	ext := embedding.NewExtractor(embedding.NewMockEncoder(16, 32))
	if _, err := NewImporter(store, WithEmbedder(ext)).ImportFile(context.Background(), path); err == nil {
		t.Fatal("expected error for missing image file")
	}
	galleries, err := store.ListGalleries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(galleries) != 0 {
		t.Errorf("expected nothing written, got %d galleries", len(galleries))
	}
}

func TestReadWorkbook_Errors(t *testing.T) {
	tests := []struct {
		name   string
		sheets []sheet
		want   string
	}{
		{
			"missing title",
			catalogSheets([]interface{}{"", 42, "", "", "", "", "", ""}),
			"row 2: title is required",
		},
		{
			"malformed id",
			catalogSheets([]interface{}{"A-17", 42, "Sunflowers", "", "", "", "", ""}),
			"not a UUID",
		},
		{
			"non-integer exhibition",
			catalogSheets([]interface{}{"", "forty-two", "Sunflowers", "", "", "", "", ""}),
			"exhibition_id",
		},
		{
			"no catalog sheets",
			[]sheet{{"Notes", [][]interface{}{{"hello"}}}},
			"none of the sheets",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.xlsx")
			writeWorkbook(t, path, tt.sheets...)
			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			_, err = ReadWorkbook(f)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-03-01", "2024-03-01", false},
		{"45352", "2024-03-01", false},
		{"45352.5", "2024-03-01", false},
		{"March 1st", "", true},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDate(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got.String() != tt.want {
			t.Errorf("parseDate(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseBoolAndInt(t *testing.T) {
	for _, s := range []string{"1", "TRUE", "yes"} {
		if b, err := parseBool(s); err != nil || !b {
			t.Errorf("parseBool(%q) = %v, %v", s, b, err)
		}
	}
	if _, err := parseBool("maybe"); err == nil {
		t.Error("expected error for maybe")
	}
	if n, err := parseInt("17.0"); err != nil || n != 17 {
		t.Errorf("parseInt(17.0) = %d, %v", n, err)
	}
	if _, err := parseInt("17.5"); err == nil {
		t.Error("expected error for 17.5")
	}
}
