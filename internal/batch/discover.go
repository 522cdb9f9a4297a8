package batch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// imageExts is the fixed set of raster extensions considered for captioning,
// matched case-insensitively.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
}

// DiscoverImages lists the image files directly inside dir, sorted by path.
func DiscoverImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var imgs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			imgs = append(imgs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(imgs)
	return imgs, nil
}

// CaptionPath derives the sibling caption file for an image: same stem, .txt
// extension. Presence of this file is the "already captioned" marker.
func CaptionPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
}
