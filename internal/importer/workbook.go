package importer

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/storage"
)

// Sheet names of a catalog workbook. Header cells name the JSON fields of the
// corresponding model; unknown columns and sheets are ignored.
const (
	SheetGallery    = "Gallery"
	SheetExhibition = "Exhibition"
	SheetArtworks   = "Artworks"
)

// imageFileColumn names the artwork image path, relative to the workbook,
// used to compute embeddings on import.
const imageFileColumn = "image_file"

// Workbook is the parsed content of a catalog workbook.
type Workbook struct {
	Batch storage.Batch
	// ImageFiles maps artwork id to its image_file cell.
	ImageFiles map[string]string
}

// record is one data row keyed by lower-cased header.
type record struct {
	sheet  string
	row    int
	values map[string]string
}

func (r record) str(key string) string {
	return strings.TrimSpace(r.values[key])
}

func (r record) optStr(key string) *string {
	v := r.str(key)
	if v == "" {
		return nil
	}
	return &v
}

func (r record) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("sheet %s row %d: %s", r.sheet, r.row, fmt.Sprintf(format, args...))
}

func (r record) required(key string) (string, error) {
	v := r.str(key)
	if v == "" {
		return "", r.errorf("%s is required", key)
	}
	return v, nil
}

func (r record) requiredInt(key string) (int64, error) {
	v, err := r.required(key)
	if err != nil {
		return 0, err
	}
	n, err := parseInt(v)
	if err != nil {
		return 0, r.errorf("%s: %v", key, err)
	}
	return n, nil
}

func (r record) optInt(key string) (*int64, error) {
	v := r.str(key)
	if v == "" {
		return nil, nil
	}
	n, err := parseInt(v)
	if err != nil {
		return nil, r.errorf("%s: %v", key, err)
	}
	return &n, nil
}

func (r record) optBool(key string) (*bool, error) {
	v := r.str(key)
	if v == "" {
		return nil, nil
	}
	b, err := parseBool(v)
	if err != nil {
		return nil, r.errorf("%s: %v", key, err)
	}
	return &b, nil
}

func (r record) optDate(key string) (*models.Date, error) {
	v := r.str(key)
	if v == "" {
		return nil, nil
	}
	d, err := parseDate(v)
	if err != nil {
		return nil, r.errorf("%s: %v", key, err)
	}
	return &d, nil
}

// parseInt accepts integers and integral floats, since raw numeric cells may
// be stored either way.
func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// parseDate accepts ISO dates and Excel date serial numbers.
func parseDate(s string) (models.Date, error) {
	if d, err := models.ParseDate(s); err == nil {
		return d, nil
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return models.Date{}, fmt.Errorf("not a date: %q", s)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return models.Date{}, err
	}
	return models.NewDate(t.Year(), t.Month(), t.Day()), nil
}

// ReadWorkbook parses a catalog workbook.
func ReadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	wb := &Workbook{ImageFiles: make(map[string]string)}
	found := false
	for _, sheet := range f.GetSheetList() {
		var parse func(record) error
		switch sheet {
		case SheetGallery:
			parse = wb.addGallery
		case SheetExhibition:
			parse = wb.addExhibition
		case SheetArtworks:
			parse = wb.addArtwork
		default:
			continue
		}
		found = true
		records, err := readSheet(f, sheet)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if err := parse(rec); err != nil {
				return nil, err
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("workbook has none of the sheets %s, %s, %s", SheetGallery, SheetExhibition, SheetArtworks)
	}
	return wb, nil
}

// readSheet returns the data rows of a sheet. Raw cell values are read so
// dates arrive as serial numbers rather than locale-formatted text.
func readSheet(f *excelize.File, sheet string) ([]record, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var records []record
	for i, row := range rows[1:] {
		rec := record{sheet: sheet, row: i + 2, values: make(map[string]string, len(header))}
		blank := true
		for j, cell := range row {
			if j >= len(header) || header[j] == "" {
				continue
			}
			rec.values[header[j]] = cell
			if strings.TrimSpace(cell) != "" {
				blank = false
			}
		}
		if !blank {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (wb *Workbook) addGallery(r record) error {
	id, err := r.requiredInt("id")
	if err != nil {
		return err
	}
	name, err := r.required("name")
	if err != nil {
		return err
	}
	wb.Batch.Galleries = append(wb.Batch.Galleries, models.Gallery{
		ID:          id,
		Name:        name,
		Location:    r.str("location"),
		Description: r.str("description"),
	})
	return nil
}

func (wb *Workbook) addExhibition(r record) error {
	var (
		e   models.Exhibition
		err error
	)
	if e.ID, err = r.requiredInt("id"); err != nil {
		return err
	}
	if e.GalleryID, err = r.requiredInt("gallery_id"); err != nil {
		return err
	}
	if e.Name, err = r.required("name"); err != nil {
		return err
	}
	if e.StartDate, err = r.optDate("start_date"); err != nil {
		return err
	}
	if e.EndDate, err = r.optDate("end_date"); err != nil {
		return err
	}
	current, err := r.optBool("is_now")
	if err != nil {
		return err
	}
	e.IsCurrent = current != nil && *current
	e.Description = r.str("description")
	e.Info = r.str("info")
	e.Brochure = r.optStr("brochure")
	e.Location = r.str("location")
	e.AdmissionFee = r.optStr("admission_fee")
	wb.Batch.Exhibitions = append(wb.Batch.Exhibitions, e)
	return nil
}

func (wb *Workbook) addArtwork(r record) error {
	var (
		a   models.Artwork
		err error
	)
	a.ID = r.str("id")
	if a.ID == "" {
		a.ID = uuid.New().String()
	} else if u, err := uuid.Parse(a.ID); err != nil {
		return r.errorf("id %q is not a UUID", a.ID)
	} else {
		a.ID = u.String()
	}
	if a.ExhibitionID, err = r.requiredInt("exhibition_id"); err != nil {
		return err
	}
	if a.Title, err = r.required("title"); err != nil {
		return err
	}
	if a.ManagementNumber, err = r.optInt("management_number"); err != nil {
		return err
	}
	if a.IsCurrent, err = r.optBool("is_now"); err != nil {
		return err
	}
	a.Artist = r.str("artist")
	a.Description = r.optStr("description")
	a.ImageURL = r.optStr("image_url")
	a.ProductionYear = r.optStr("production_year")
	a.Materials = r.optStr("ingredients")
	a.Dimensions = r.optStr("size")
	if file := r.str(imageFileColumn); file != "" {
		wb.ImageFiles[a.ID] = file
	}
	wb.Batch.Artworks = append(wb.Batch.Artworks, a)
	return nil
}
