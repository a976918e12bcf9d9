// Package service holds the business rules of the book club.
//
// LAYERING:
//
//	Handler (HTTP)  → parses requests, writes JSON, maps errors to status codes
//	Service         → validates input, checks permissions, mutates collections
//	Repository      → persists whole collections and image blobs
//
// Services never see HTTP types and return apperror values for every
// rule violation, so the same methods back the HTTP API and the admin CLI.
//
// STATE MODEL:
// Each collection (clubs, catalog, users) is a repository.Collection. A
// mutation runs inside Collection.Update: the service receives a private
// copy of the current items, changes it, and the collection persists the
// result before making it visible. A rule violation returned from inside
// the update discards the copy, so rejected operations never leave a
// partial change behind.
package service

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/book-club/internal/catalog"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

// errUnchanged is returned from inside an update to abort it without an
// error reaching the caller. Used by idempotent operations (joining a club
// twice, shelving a book twice) so they do not rewrite storage.
var errUnchanged = errors.New("service: unchanged")

// Collections bundles the three persisted collections every service reads.
type Collections struct {
	Clubs *repository.Collection[model.Club]
	Books *repository.Collection[model.Book]
	Users *repository.Collection[model.User]
}

// NewCollections binds the collections to store. The catalog is seeded with
// the built-in starter books; clubs and users start empty.
func NewCollections(store repository.CollectionStore, logger *slog.Logger) *Collections {
	return &Collections{
		Clubs: repository.NewCollection[model.Club](store, repository.KeyClubs, nil, logger),
		Books: repository.NewCollection(store, repository.KeyBooks, catalog.DefaultBooks, logger),
		Users: repository.NewCollection[model.User](store, repository.KeyUsers, nil, logger),
	}
}

// Reload drops every cached snapshot.
func (c *Collections) Reload() {
	c.Clubs.Reload()
	c.Books.Reload()
	c.Users.Reload()
}

func indexOfClub(clubs []model.Club, id string) int {
	for i := range clubs {
		if clubs[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfUser(users []model.User, id string) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfBook(books []model.Book, id string) int {
	for i := range books {
		if books[i].ID == id {
			return i
		}
	}
	return -1
}

// cleanTags trims, drops empties and removes case-insensitive duplicates,
// keeping the first spelling.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
