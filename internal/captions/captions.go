// Package captions handles caption files on disk: loading and saving the text
// sibling of an image, and moving image/caption pairs by caption keyword.
package captions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"captiond/internal/batch"
	"captiond/pkg/types"
)

// ListImages returns the images in dir together with their caption state.
func ListImages(dir string) ([]types.CaptionResponse, error) {
	imgs, err := batch.DiscoverImages(dir)
	if err != nil {
		return nil, err
	}
	out := make([]types.CaptionResponse, 0, len(imgs))
	for _, img := range imgs {
		capPath := batch.CaptionPath(img)
		_, statErr := os.Stat(capPath)
		out = append(out, types.CaptionResponse{
			ImagePath:   img,
			CaptionPath: capPath,
			Exists:      statErr == nil,
		})
	}
	return out, nil
}

// Load reads the caption for an image. A missing caption file is not an
// error; Exists is false and Text empty.
func Load(imagePath string) (types.CaptionResponse, error) {
	capPath := batch.CaptionPath(imagePath)
	resp := types.CaptionResponse{ImagePath: imagePath, CaptionPath: capPath}
	b, err := os.ReadFile(capPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return resp, nil
		}
		return resp, err
	}
	resp.Exists = true
	resp.Text = string(b)
	return resp, nil
}

// Save writes the caption for an image, replacing any prior content.
func Save(imagePath, text string) error {
	return os.WriteFile(batch.CaptionPath(imagePath), []byte(text), 0o644)
}

// MoveKeywordPairs moves every image whose caption contains the
// case-insensitive keyword, together with its caption file, from src to dst.
// Per-file failures are logged and do not abort the sweep.
func MoveKeywordPairs(src, keyword, dst string) (types.MoveResponse, error) {
	var resp types.MoveResponse
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return resp, errors.New("empty keyword")
	}
	for _, dir := range []string{src, dst} {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			return resp, fmt.Errorf("not a directory: %s", dir)
		}
	}

	imgs, err := batch.DiscoverImages(src)
	if err != nil {
		return resp, err
	}
	resp.Log = append(resp.Log, "searching for keyword: "+kw)
	for _, img := range imgs {
		capPath := batch.CaptionPath(img)
		b, err := os.ReadFile(capPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // uncaptioned images are never moved
			}
			resp.Log = append(resp.Log, fmt.Sprintf("error on %s: %v", img, err))
			continue
		}
		if !strings.Contains(strings.ToLower(string(b)), kw) {
			continue
		}
		if err := movePair(img, capPath, dst); err != nil {
			resp.Log = append(resp.Log, fmt.Sprintf("error on %s: %v", img, err))
			continue
		}
		resp.Moved++
		resp.Log = append(resp.Log, "moved: "+filepath.Base(img))
	}
	resp.Log = append(resp.Log, fmt.Sprintf("done, moved %d pairs", resp.Moved))
	return resp, nil
}

func movePair(img, capPath, dst string) error {
	if err := os.Rename(img, filepath.Join(dst, filepath.Base(img))); err != nil {
		return err
	}
	return os.Rename(capPath, filepath.Join(dst, filepath.Base(capPath)))
}
