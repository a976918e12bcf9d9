package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/imaging"
	"github.com/sakif/book-club/internal/model"
)

func TestUploadImage_AvatarIsLinked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "reader")

	img, err := env.images.UploadImage(ctx, user, model.ImageAvatar, "", bytes.NewReader(pngBytes(t, 32, 16)))
	require.NoError(t, err)
	assert.Equal(t, user, img.UserID)
	assert.Equal(t, imaging.OutputContentType, img.ContentType)
	assert.Equal(t, int64(len(img.Data)), img.Size)

	u, err := env.auth.GetUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, img.ID, u.AvatarID)

	got, err := env.images.GetImage(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)
	assert.NotEmpty(t, got.Data)
}

func TestUploadImage_ClubImageNeedsModerator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	reader := env.addUser(t, "reader")
	club := env.addClub(t, owner, "Illustrated")
	_, err := env.clubs.JoinClub(ctx, club.ID, reader)
	require.NoError(t, err)

	_, err = env.images.UploadImage(ctx, reader, model.ImageClub, club.ID, bytes.NewReader(pngBytes(t, 8, 8)))
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	img, err := env.images.UploadImage(ctx, owner, model.ImageClub, club.ID, bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)
	assert.Equal(t, club.ID, img.ClubID)

	got, err := env.clubs.GetClub(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ImageID)

	_, err = env.images.UploadImage(ctx, owner, model.ImageClub, "", bytes.NewReader(pngBytes(t, 8, 8)))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestUploadImage_Rejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "reader")

	_, err := env.images.UploadImage(ctx, "", model.ImageAvatar, "", bytes.NewReader(pngBytes(t, 4, 4)))
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = env.images.UploadImage(ctx, user, model.ImageType("banner"), "", bytes.NewReader(pngBytes(t, 4, 4)))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.images.UploadImage(ctx, user, model.ImageAvatar, "", strings.NewReader("definitely not an image"))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	images, err := env.store.ListImages(ctx)
	require.NoError(t, err)
	assert.Empty(t, images, "rejected uploads store nothing")
}

func TestGetImage_UnknownOwner(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.images.GetImage(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetVisibleImage_PrivateClub(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	outsider := env.addUser(t, "outsider")
	club := env.addClub(t, owner, "Closed Circle")
	private := true
	_, err := env.clubs.UpdateClub(ctx, owner, club.ID, ClubPatch{IsPrivate: &private})
	require.NoError(t, err)

	img, err := env.images.UploadImage(ctx, owner, model.ImageClub, club.ID, bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)

	_, err = env.images.GetVisibleImage(ctx, club.ID, outsider)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.images.GetVisibleImage(ctx, club.ID, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := env.images.GetVisibleImage(ctx, club.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)

	// Images outlive their club.
	require.NoError(t, env.clubs.DeleteClub(ctx, owner, club.ID))
	got, err = env.images.GetVisibleImage(ctx, club.ID, outsider)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)
}

func TestDeleteImage_Permissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "reader")
	other := env.addUser(t, "other")

	img, err := env.images.UploadImage(ctx, user, model.ImageAvatar, "", bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)

	assert.ErrorIs(t, env.images.DeleteImage(ctx, other, img.ID), apperror.ErrForbidden)
	require.NoError(t, env.images.DeleteImage(ctx, user, img.ID))

	u, err := env.auth.GetUser(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, u.AvatarID, "avatar link is cleared")

	_, err = env.images.GetImageByID(ctx, img.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, env.images.DeleteImage(ctx, user, img.ID), apperror.ErrNotFound)
}

func TestDeleteImage_ClubModeratorUnlinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	club := env.addClub(t, owner, "Pictures")

	img, err := env.images.UploadImage(ctx, owner, model.ImageClub, club.ID, bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)

	require.NoError(t, env.images.DeleteImage(ctx, owner, img.ID))
	got, err := env.clubs.GetClub(ctx, club.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ImageID)
}
