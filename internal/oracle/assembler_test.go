package oracle

import (
	"errors"
	"testing"

	"github.com/hyperjump/docent/internal/errs"
)

func TestAssemble(t *testing.T) {
	rows := []Row{row("a", "Sunflowers", 0.91), row("b", "Irises", 0.77)}
	matches, err := Assemble(42, rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Score != 0.91 || matches[0].Artwork.ID != "a" {
		t.Errorf("first match = %+v", matches[0])
	}
	if matches[1].Score != 0.77 || matches[1].Artwork.ID != "b" {
		t.Errorf("second match = %+v", matches[1])
	}
	for _, m := range matches {
		if m.Artwork.ExhibitionID != 42 {
			t.Errorf("exhibition id = %d, want 42", m.Artwork.ExhibitionID)
		}
	}
}

func TestAssemble_PreservesOrder(t *testing.T) {
	// Ascending scores on purpose: the assembler must not re-sort.
	rows := []Row{row("x", "X", 0.1), row("y", "Y", 0.5), row("x", "X", 0.9)}
	matches, err := Assemble(7, rows)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"x", "y", "x"}
	for i, m := range matches {
		if m.Artwork.ID != want[i] || m.Score != *rows[i].Score {
			t.Errorf("match %d = (%s, %v), want (%s, %v)", i, m.Artwork.ID, m.Score, want[i], *rows[i].Score)
		}
	}
}

func TestAssemble_Empty(t *testing.T) {
	matches, err := Assemble(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", matches)
	}
}

func TestAssemble_MalformedRow(t *testing.T) {
	good := row("a", "A", 0.9)
	tests := []struct {
		name string
		bad  Row
	}{
		{"missing id", Row{Title: ptr("B"), Score: ptr(0.5)}},
		{"missing title", Row{ID: ptr("b"), Score: ptr(0.5)}},
		{"missing score", Row{ID: ptr("b"), Title: ptr("B")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := Assemble(1, []Row{good, tt.bad})
			if !errors.Is(err, errs.ErrMalformedRow) {
				t.Fatalf("err = %v, want ErrMalformedRow", err)
			}
			if matches != nil {
				t.Error("expected no partial results")
			}
		})
	}
}

func TestAssemble_MissingArtist(t *testing.T) {
	matches, err := Assemble(1, []Row{{ID: ptr("a"), Title: ptr("A"), Score: ptr(0.3)}})
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Artwork.Artist != "" {
		t.Errorf("artist = %q, want empty", matches[0].Artwork.Artist)
	}
	if matches[0].Artwork.Description != nil {
		t.Error("absent description should stay nil")
	}
}
