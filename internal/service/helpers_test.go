package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/book-club/internal/auth"
	"github.com/sakif/book-club/internal/catalog"
	"github.com/sakif/book-club/internal/imaging"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository/memory"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================

// testEnv wires every service to one in-memory store, the same way the
// server does with a real backend.
type testEnv struct {
	store    *memory.Store
	cols     *Collections
	auth     *AuthService
	clubs    *ClubService
	progress *ProgressService
	catalog  *CatalogService
	images   *ImageService
	source   *fakeSource
	describe *fakeDescriber
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	store := memory.New()
	cols := NewCollections(store, logger)

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	require.NoError(t, err)
	// Cost 4 is the bcrypt minimum and keeps the suite fast.
	passwords := auth.NewPasswordServiceWithCost(4)

	source := &fakeSource{}
	describer := &fakeDescriber{}
	clubs := NewClubService(cols, logger)

	return &testEnv{
		store:    store,
		cols:     cols,
		auth:     NewAuthService(cols, tokens, passwords, logger),
		clubs:    clubs,
		progress: NewProgressService(cols, logger),
		catalog:  NewCatalogService(cols, source, describer, logger),
		images:   NewImageService(store, cols, clubs, imaging.DefaultOptions(), logger),
		source:   source,
		describe: describer,
	}
}

// addUser registers a user and returns its ID.
func (e *testEnv) addUser(t *testing.T, name string) string {
	t.Helper()
	u, err := e.auth.CreateUser(context.Background(), name, name+"@example.com", "correct-horse")
	require.NoError(t, err)
	return u.ID
}

// addClub creates a public club owned by ownerID.
func (e *testEnv) addClub(t *testing.T, ownerID, name string) *model.Club {
	t.Helper()
	c, err := e.clubs.CreateClub(context.Background(), ownerID, ClubDraft{
		Name:        name,
		Description: "A club for " + name,
	})
	require.NoError(t, err)
	return c
}

// seedBookID is a book present in the built-in catalog.
func seedBookID(t *testing.T) string {
	t.Helper()
	books := catalog.DefaultBooks()
	require.NotEmpty(t, books)
	return books[0].ID
}

// =========================================================================
// FAKES
// =========================================================================

type fakeSource struct {
	docs     []catalog.SearchDoc
	subjects map[string][]catalog.SearchDoc
	err      error
	calls    int
}

func (f *fakeSource) Search(_ context.Context, _ string, limit int) ([]catalog.SearchDoc, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[:min(limit, len(f.docs))], nil
}

func (f *fakeSource) Subject(_ context.Context, subject string, _ int) ([]catalog.SearchDoc, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subjects[subject], nil
}

type fakeDescriber struct {
	enabled bool
	text    string
	err     error
}

func (f *fakeDescriber) Enabled() bool { return f.enabled }

func (f *fakeDescriber) Describe(_ context.Context, title, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text + " " + title, nil
}

// pngBytes returns a small encoded PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
