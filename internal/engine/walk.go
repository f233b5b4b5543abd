package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Collect returns the paths, relative to root, of all files below root whose
// extension is in extensions. Extensions are compared case-sensitively, with
// or without a leading dot. The result is sorted.
func Collect(root string, extensions []string) ([]string, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputNotDir, root)
	}

	wanted := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		wanted[strings.TrimPrefix(ext, ".")] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(d.Name())
		if ext == "" || !wanted[ext[1:]] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// prepareOutput creates root if needed. An existing non-directory is an error.
func prepareOutput(root string) error {
	fi, err := os.Stat(root)
	switch {
	case err == nil && !fi.IsDir():
		return fmt.Errorf("%w: %s", ErrOutputNotDir, root)
	case err != nil && !os.IsNotExist(err):
		return err
	}
	return os.MkdirAll(root, 0755)
}

// outputPath returns the image path for page of rel under root. Multi-page
// documents get one PNG per page: a/doc.pdf -> a/doc_p0001.png.
func outputPath(root, rel string, page int, multiPage bool) string {
	if !multiPage {
		return filepath.Join(root, rel)
	}
	base := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(root, fmt.Sprintf("%s_p%04d.png", base, page+1))
}

// sidecarPath replaces the image extension with the metadata extension.
func sidecarPath(imagePath, ext string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ext
}
