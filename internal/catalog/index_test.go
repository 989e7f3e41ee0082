package catalog

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// gradientImage renders a deterministic test pattern. Different phase
// values produce visually distinct images with distinct hashes.
func gradientImage(phase uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(x*4) + phase
			if (x/8+y/8)%2 == 0 {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{R: v, G: uint8(y * 4), B: phase, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyDirectory", func(t *testing.T) {
		ix, err := Build(ctx, t.TempDir(), 4)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if ix.Len() != 0 {
			t.Errorf("expected empty index, got %d entries", ix.Len())
		}
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		ix, err := Build(ctx, filepath.Join(t.TempDir(), "does-not-exist"), 4)
		if err != nil {
			t.Fatalf("Build should tolerate a missing directory: %v", err)
		}
		if ix.Len() != 0 {
			t.Errorf("expected empty index, got %d entries", ix.Len())
		}
	})

	t.Run("SkipsUndecodableAndNonImage", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "good.png"), gradientImage(0))
		if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
			t.Fatal(err)
		}

		ix, err := Build(ctx, dir, 4)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if ix.Len() != 1 {
			t.Fatalf("expected 1 entry, got %d", ix.Len())
		}
		if ix.Entries()[0].FileName != "good.png" {
			t.Errorf("expected good.png, got %s", ix.Entries()[0].FileName)
		}
	})
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyIndex", func(t *testing.T) {
		ix := NewIndex(nil)
		match, err := ix.Query(gradientImage(0))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if match.BestFile != nil || match.Distance != nil || match.SimilarityPct != nil {
			t.Errorf("expected all-nil match for empty index, got %+v", match)
		}
	})

	t.Run("IdenticalImage", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "ref.png"), gradientImage(40))
		writePNG(t, filepath.Join(dir, "other.png"), gradientImage(200))

		ix, err := Build(ctx, dir, 4)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		match, err := ix.Query(gradientImage(40))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if match.BestFile == nil || *match.BestFile != "ref.png" {
			t.Fatalf("expected best match ref.png, got %+v", match.BestFile)
		}
		if *match.Distance != 0 {
			t.Errorf("expected distance 0 for identical image, got %d", *match.Distance)
		}
		if *match.SimilarityPct != 100 {
			t.Errorf("expected similarity 100, got %f", *match.SimilarityPct)
		}
	})

	t.Run("TieBreakFirstSeen", func(t *testing.T) {
		dir := t.TempDir()
		// Same image under two names: equal distance, first enumerated wins.
		writePNG(t, filepath.Join(dir, "a_first.png"), gradientImage(10))
		writePNG(t, filepath.Join(dir, "b_second.png"), gradientImage(10))

		ix, err := Build(ctx, dir, 4)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if ix.Len() != 2 {
			t.Fatalf("expected 2 entries, got %d", ix.Len())
		}

		match, err := ix.Query(gradientImage(10))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if match.BestFile == nil || *match.BestFile != "a_first.png" {
			t.Errorf("expected tie broken to a_first.png, got %v", match.BestFile)
		}
	})

	t.Run("BoundsHold", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "ref.png"), gradientImage(0))

		ix, err := Build(ctx, dir, 4)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		match, err := ix.Query(gradientImage(128))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		d := *match.Distance
		if d < 0 || d > 64 {
			t.Errorf("distance %d out of [0,64]", d)
		}
		sim := *match.SimilarityPct
		if sim < 0 || sim > 100 {
			t.Errorf("similarity %f out of [0,100]", sim)
		}
		if want := 100 * (1 - float64(d)/64); sim != want {
			t.Errorf("similarity %f does not match 100*(1-d/64)=%f", sim, want)
		}
	})
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		distance int
		want     float64
	}{
		{0, 100},
		{16, 75},
		{32, 50},
		{64, 0},
	}
	for _, c := range cases {
		if got := Similarity(c.distance); got != c.want {
			t.Errorf("Similarity(%d) = %f, want %f", c.distance, got, c.want)
		}
	}
}
