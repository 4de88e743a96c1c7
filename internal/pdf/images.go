package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageImage returns the dominant embedded image of a page, which for a
// scanned document is the full-page scan. Results are cached on the handle;
// a page with no embedded images returns nil.
func (p *PDF) PageImage(pageNum int) (image.Image, error) {
	if pageNum < 1 || pageNum > p.pageCount {
		return nil, fmt.Errorf("page %d out of range [1, %d]", pageNum, p.pageCount)
	}

	p.mu.Lock()
	if img, ok := p.pageImages[pageNum]; ok {
		p.mu.Unlock()
		return img, nil
	}
	p.mu.Unlock()

	images, err := extractImages(p.path, pageNum)
	if err != nil {
		return nil, fmt.Errorf("extract images from page %d: %w", pageNum, err)
	}

	img := largestImage(images[pageNum])

	p.mu.Lock()
	p.pageImages[pageNum] = img
	p.mu.Unlock()

	return img, nil
}

// largestImage picks the image with the greatest pixel area.
func largestImage(images []image.Image) image.Image {
	var best image.Image
	bestArea := 0
	for _, img := range images {
		b := img.Bounds()
		area := b.Dx() * b.Dy()
		if area > bestArea {
			best = img
			bestArea = area
		}
	}
	return best
}

// extractImages extracts the embedded images of a single page using pdfcpu
// and groups them by page number.
func extractImages(filename string, pageNum int) (map[int][]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "reader-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	pages := []string{strconv.Itoa(pageNum)}
	if err := api.ExtractImagesFile(filename, tempDir, pages, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}

	return collectExtractedImages(tempDir)
}

// collectExtractedImages walks the given directory and groups images by page
// number. pdfcpu names files page_<num>_image_<idx>.<ext>.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	result := make(map[int][]image.Image)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		pageNum, err := parsePageFromFilename(info.Name())
		if err != nil {
			return nil // not a page image
		}

		img, err := loadImageFile(path)
		if err != nil {
			return nil // skip unreadable images
		}
		result[pageNum] = append(result[pageNum], img)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu image filename.
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page file")
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	pageNum, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// loadImageFile loads an image from a file path.
func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: reading our own temp extraction dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}
