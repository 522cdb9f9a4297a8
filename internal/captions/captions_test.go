package captions

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := write(t, dir, "a.png", "img")

	got, err := Load(img)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Exists || got.Text != "" {
		t.Fatalf("missing caption should load empty: %+v", got)
	}

	if err := Save(img, "a painted portrait"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = Load(img)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Exists || got.Text != "a painted portrait" {
		t.Fatalf("round trip failed: %+v", got)
	}
}

func TestListImagesReportsCaptionState(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.png", "img")
	write(t, dir, "b.jpg", "img")
	write(t, dir, "a.txt", "captioned")

	got, err := ListImages(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 images, got %d", len(got))
	}
	if !got[0].Exists || got[1].Exists {
		t.Fatalf("caption state wrong: %+v", got)
	}
}

func TestMoveKeywordPairs(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, src, "match.png", "img")
	write(t, src, "match.txt", "A woman in a RED DRESS by a window")
	write(t, src, "nomatch.png", "img")
	write(t, src, "nomatch.txt", "a blue car")
	write(t, src, "uncaptioned.png", "img")

	resp, err := MoveKeywordPairs(src, "red dress", dst)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if resp.Moved != 1 {
		t.Fatalf("moved = %d", resp.Moved)
	}
	for _, name := range []string{"match.png", "match.txt"} {
		if _, err := os.Stat(filepath.Join(dst, name)); err != nil {
			t.Fatalf("%s not moved: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(src, name)); !os.IsNotExist(err) {
			t.Fatalf("%s still in source", name)
		}
	}
	if _, err := os.Stat(filepath.Join(src, "nomatch.png")); err != nil {
		t.Fatalf("non-matching pair moved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(src, "uncaptioned.png")); err != nil {
		t.Fatalf("uncaptioned image moved: %v", err)
	}
}

func TestMoveKeywordPairsValidation(t *testing.T) {
	dir := t.TempDir()
	if _, err := MoveKeywordPairs(dir, "  ", dir); err == nil {
		t.Fatalf("empty keyword accepted")
	}
	if _, err := MoveKeywordPairs("/no/such/dir", "kw", dir); err == nil {
		t.Fatalf("missing source accepted")
	}
}
