package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sakif/book-club/internal/model"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Books []SeedBook `yaml:"books"`
}

// ParseSeed reads a YAML list of books under a top-level "books" key and
// applies the usual defaults to each.
func ParseSeed(data []byte) ([]model.Book, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parsing seed: %w", err)
	}

	books := make([]model.Book, 0, len(f.Books))
	for i, s := range f.Books {
		if strings.TrimSpace(s.ID) == "" || s.Title == "" {
			return nil, fmt.Errorf("catalog: seed entry %d: id and title are required", i)
		}
		books = append(books, FromSeed(s))
	}
	return books, nil
}

// DefaultBooks returns the built-in starter catalog.
func DefaultBooks() []model.Book {
	books, err := ParseSeed(defaultSeed)
	if err != nil {
		// The embedded file is covered by tests.
		panic(err)
	}
	return books
}
