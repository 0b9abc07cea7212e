package kb

import (
	"encoding/json"
	"fmt"
	"os"

	"kbindex/internal/models"
)

// File is the on-disk knowledge base format: either an object with a
// "documents" array or a bare array of documents.
type File struct {
	Documents []models.Document `json:"documents"`
}

func Load(path string) ([]models.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]models.Document, error) {
	var file File
	if err := json.Unmarshal(raw, &file); err == nil && file.Documents != nil {
		return validate(file.Documents)
	}

	var docs []models.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}
	return validate(docs)
}

func validate(docs []models.Document) ([]models.Document, error) {
	for i, doc := range docs {
		if doc.DocumentID == "" {
			return nil, fmt.Errorf("document %d is missing document_id", i)
		}
	}
	return docs, nil
}
