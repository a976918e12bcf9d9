// Package catalog turns book records from any source into the canonical
// model.Book shape.
//
// Two input shapes exist:
//
//   - SeedBook: already canonical (our own seed file, the admin CLI, POST /api/books).
//   - SearchDoc: an Open Library search or subject result, which needs mapping.
//
// DecodeInput decides which one a raw JSON document is, once, up front. After
// that the rest of the code switches on a Go type instead of sniffing fields.
//
// Summary synthesis for search docs needs I/O (cache, text generator) and so
// lives in the service layer; this package only supplies the template used
// as the last fallback.
package catalog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
)

// MaxTags caps how many subjects of a search doc become tags.
const MaxTags = 5

// UnknownAuthor is used when a search doc names no author.
const UnknownAuthor = "Unknown Author"

// Input is either a SeedBook or a SearchDoc.
type Input interface {
	input()
}

// SeedBook is a book already in the canonical shape.
type SeedBook struct {
	ID            string   `json:"id"            yaml:"id"`
	Title         string   `json:"title"         yaml:"title"`
	Author        string   `json:"author"        yaml:"author"`
	Genre         string   `json:"genre"         yaml:"genre"`
	PublishedYear int      `json:"publishedYear" yaml:"publishedYear"`
	Summary       string   `json:"summary"       yaml:"summary"`
	CoverImage    string   `json:"coverImage"    yaml:"coverImage"`
	Tags          []string `json:"tags"          yaml:"tags"`
	Rating        float64  `json:"rating"        yaml:"rating"`
}

type AuthorRef struct {
	Name string `json:"name"`
}

// SearchDoc covers both Open Library result shapes: /search.json docs use
// author_name, cover_i and subject, while /subjects works use authors,
// cover_id and subject too. Any of the fields may be missing.
type SearchDoc struct {
	Key              string      `json:"key,omitempty"`
	Title            string      `json:"title"`
	AuthorName       []string    `json:"author_name,omitempty"`
	Authors          []AuthorRef `json:"authors,omitempty"`
	Subject          []string    `json:"subject,omitempty"`
	Subjects         []string    `json:"subjects,omitempty"`
	CoverI           int         `json:"cover_i,omitempty"`
	CoverID          int         `json:"cover_id,omitempty"`
	FirstPublishYear int         `json:"first_publish_year,omitempty"`
	PublishYear      []int       `json:"publish_year,omitempty"`
}

func (SeedBook) input()  {}
func (SearchDoc) input() {}

// DecodeInput classifies raw as a SeedBook when it has id, title and author
// strings and a numeric publishedYear, and as a SearchDoc otherwise. Either
// way a title is required.
func DecodeInput(raw json.RawMessage) (Input, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperror.ValidationFailed("book", "must be a JSON object")
	}

	if isSeedShape(fields) {
		var seed SeedBook
		if err := json.Unmarshal(raw, &seed); err != nil {
			return nil, apperror.ValidationFailed("book", err.Error())
		}
		if strings.TrimSpace(seed.Title) == "" {
			return nil, apperror.ValidationFailed("title", "title is required")
		}
		return seed, nil
	}

	var doc SearchDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperror.ValidationFailed("book", err.Error())
	}
	if strings.TrimSpace(doc.Title) == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	return doc, nil
}

func isSeedShape(fields map[string]json.RawMessage) bool {
	for _, k := range []string{"id", "title", "author"} {
		v, ok := fields[k]
		if !ok || len(v) == 0 || v[0] != '"' {
			return false
		}
	}
	year, ok := fields["publishedYear"]
	if !ok {
		return false
	}
	_, err := strconv.ParseFloat(string(year), 64)
	return err == nil
}

// FromSeed fills defaults for the optional fields of a canonical record. A
// blank id gets a fresh one, since the id is the catalog's dedupe key.
func FromSeed(s SeedBook) model.Book {
	b := model.Book{
		ID:            strings.TrimSpace(s.ID),
		Title:         s.Title,
		Author:        s.Author,
		Genre:         s.Genre,
		PublishedYear: s.PublishedYear,
		Summary:       s.Summary,
		CoverImage:    s.CoverImage,
		Tags:          slices.Clone(s.Tags),
		Rating:        s.Rating,
	}
	if b.ID == "" {
		b.ID = xid.New().String()
	}
	if b.Genre == "" {
		b.Genre = model.DefaultGenre
	}
	if b.Summary == "" {
		b.Summary = model.DefaultSummary
	}
	if b.CoverImage == "" {
		b.CoverImage = model.DefaultCoverImage
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b
}

// FromSearchDoc maps a search doc onto the canonical shape. Summary is left
// empty for the caller to resolve.
func FromSearchDoc(d SearchDoc) model.Book {
	subjects := d.Subject
	if len(subjects) == 0 {
		subjects = d.Subjects
	}

	b := model.Book{
		ID:            WorkID(d.Key),
		Title:         strings.TrimSpace(d.Title),
		Author:        firstAuthor(d),
		Genre:         model.DefaultGenre,
		PublishedYear: publishYear(d),
		CoverImage:    model.DefaultCoverImage,
		Tags:          []string{},
	}
	if len(subjects) > 0 {
		b.Genre = subjects[0]
		b.Tags = slices.Clone(subjects[:min(len(subjects), MaxTags)])
	}
	if cover := coverID(d); cover > 0 {
		b.CoverImage = CoverURL(cover)
	}
	return b
}

// WorkID turns "/works/OL45804W" into "OL45804W". An empty key gets a fresh id.
func WorkID(key string) string {
	key = strings.TrimRight(strings.TrimSpace(key), "/")
	if key == "" {
		return xid.New().String()
	}
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// CoverURL builds the large cover image URL for an Open Library cover id.
func CoverURL(coverID int) string {
	return fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", coverID)
}

// FallbackSummary is the templated description used when nothing better exists.
func FallbackSummary(year int, author string) string {
	if year > 0 {
		return fmt.Sprintf("A %d book by %s.", year, author)
	}
	return fmt.Sprintf("A book by %s.", author)
}

func firstAuthor(d SearchDoc) string {
	for _, name := range d.AuthorName {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	for _, a := range d.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			return name
		}
	}
	return UnknownAuthor
}

func coverID(d SearchDoc) int {
	if d.CoverI > 0 {
		return d.CoverI
	}
	return d.CoverID
}

func publishYear(d SearchDoc) int {
	if d.FirstPublishYear > 0 {
		return d.FirstPublishYear
	}
	earliest := 0
	for _, y := range d.PublishYear {
		if y > 0 && (earliest == 0 || y < earliest) {
			earliest = y
		}
	}
	return earliest
}
