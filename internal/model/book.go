package model

import "slices"

// Defaults filled in for optional fields a source leaves empty.
const (
	DefaultGenre      = "General"
	DefaultSummary    = "No description available."
	DefaultCoverImage = "https://openlibrary.org/images/icons/avatar_book-sm.png"
)

// Book is the canonical catalog record. ID is the dedupe key: adding a book
// whose ID already exists replaces the stored record.
type Book struct {
	ID            string   `json:"id"            yaml:"id"`
	Title         string   `json:"title"         yaml:"title"`
	Author        string   `json:"author"        yaml:"author"`
	Genre         string   `json:"genre"         yaml:"genre,omitempty"`
	PublishedYear int      `json:"publishedYear" yaml:"publishedYear"`
	Summary       string   `json:"summary"       yaml:"summary,omitempty"`
	CoverImage    string   `json:"coverImage"    yaml:"coverImage,omitempty"`
	Tags          []string `json:"tags"          yaml:"tags,omitempty"`
	Rating        float64  `json:"rating"        yaml:"rating,omitempty"`
}

func (b Book) Clone() Book {
	b.Tags = slices.Clone(b.Tags)
	return b
}

// HasSummary is false for an empty summary or the placeholder.
func (b *Book) HasSummary() bool {
	return b.Summary != "" && b.Summary != DefaultSummary
}
