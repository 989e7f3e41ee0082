// Package catalog builds and queries the perceptual-hash index of trusted
// reference images.
package catalog

import (
	"context"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corona10/goimagehash"
	"github.com/opensource-trust/kestrel/internal/domain"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// maxDistance is the maximum Hamming distance between two 64-bit hashes.
const maxDistance = 64

// imageExtensions is the catalog file allow-list, matched case-insensitively.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

// Index is an immutable perceptual-hash index over a catalog directory.
// Entry order is the sorted directory enumeration order; queries rely on it
// for deterministic tie-breaking.
type Index struct {
	entries []domain.CatalogEntry
}

// NewIndex wraps pre-computed entries, e.g. restored from cache.
func NewIndex(entries []domain.CatalogEntry) *Index {
	return &Index{entries: entries}
}

// Entries returns the indexed entries in enumeration order.
func (ix *Index) Entries() []domain.CatalogEntry {
	return ix.entries
}

// Len returns the number of indexed images.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Build hashes every decodable allow-listed image in dir. Files that fail
// to open or decode are logged and skipped. A missing or empty directory
// yields an empty index, not an error. Hashing runs in parallel but the
// result keeps the sorted enumeration order.
func Build(ctx context.Context, dir string, maxWorkers int) (*Index, error) {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("catalog directory missing, using empty index", "dir", dir)
			return &Index{}, nil
		}
		return nil, err
	}

	var files []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			files = append(files, de.Name())
		}
	}

	// Slot per file keeps first-seen order stable under parallel hashing.
	slots := make([]*domain.CatalogEntry, len(files))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)

	for i, name := range files {
		wg.Add(1)
		go func(idx int, fileName string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			hash, err := hashFile(filepath.Join(dir, fileName))
			if err != nil {
				slog.Warn("skipping undecodable catalog image", "file", fileName, "error", err)
				return
			}
			slots[idx] = &domain.CatalogEntry{FileName: fileName, Hash: hash}
		}(i, name)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]domain.CatalogEntry, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			entries = append(entries, *e)
		}
	}

	slog.Info("catalog index built", "dir", dir, "entries", len(entries), "skipped", len(files)-len(entries))
	return &Index{entries: entries}, nil
}

// Query hashes the candidate image and scans the index for the nearest
// entry by Hamming distance. Strict < comparison: the first enumerated
// entry wins ties. An empty index returns a match with all fields nil.
func (ix *Index) Query(img image.Image) (domain.ImageMatch, error) {
	if len(ix.entries) == 0 {
		return domain.ImageMatch{}, nil
	}

	qh, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return domain.ImageMatch{}, err
	}

	bestIdx := -1
	bestDist := maxDistance + 1
	for i, entry := range ix.entries {
		d, err := qh.Distance(goimagehash.NewImageHash(entry.Hash, goimagehash.PHash))
		if err != nil {
			continue
		}
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return domain.ImageMatch{}, nil
	}

	sim := Similarity(bestDist)
	best := ix.entries[bestIdx].FileName
	return domain.ImageMatch{
		BestFile:      &best,
		Distance:      &bestDist,
		SimilarityPct: &sim,
	}, nil
}

// Similarity maps a Hamming distance onto a percentage: 0 bits apart is
// 100%, all 64 bits apart is 0%.
func Similarity(distance int) float64 {
	return math.Max(0, 100*(1-float64(distance)/maxDistance))
}

// HashImage computes the 64-bit perceptual hash of an image.
func HashImage(img image.Image) (uint64, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, err
	}
	return h.GetHash(), nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, err
	}
	return HashImage(img)
}
