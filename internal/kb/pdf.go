package kb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"kbindex/internal/models"
	"kbindex/internal/util"
)

// LoadPDF extracts the text of one PDF into a document. The document ID is
// the SHA-256 of the file contents, so re-ingesting an unchanged file always
// maps to the same chunk IDs.
func LoadPDF(path string) (models.Document, error) {
	id, err := hashFile(path)
	if err != nil {
		return models.Document{}, err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return models.Document{}, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return models.Document{}, fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return models.Document{}, util.ErrNoExtractableText
	}

	return models.Document{
		DocumentID: id,
		FullText:   text,
		Metadata: map[string]any{
			"document_id": id,
			"filename":    filepath.Base(path),
			"doc_type":    "pdf",
		},
	}, nil
}

// LoadPDFDir loads every .pdf in a directory, in filename order. Files that
// fail to parse are skipped and reported alongside the successes.
func LoadPDFDir(dir string) ([]models.Document, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	docs := make([]models.Document, 0, len(paths))
	failed := make(map[string]error)
	for _, p := range paths {
		doc, err := LoadPDF(p)
		if err != nil {
			failed[p] = err
			continue
		}
		docs = append(docs, doc)
	}
	return docs, failed, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sum, err := util.SHA256HexFromReader(f)
	if err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return sum, nil
}
