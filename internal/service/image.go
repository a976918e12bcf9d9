package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/imaging"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

// ImageService stores avatars and club images.
//
// Uploads are re-encoded by the imaging package before they reach the store.
// After storing, the image is linked to its owner: an avatar becomes the
// user's AvatarID and a club image the club's ImageID. Those two writes go to
// different collections and are not atomic together; if linking fails the
// blob stays in the store unreferenced.
type ImageService struct {
	images repository.ImageStore
	users  *repository.Collection[model.User]
	clubs  *ClubService
	opts   imaging.Options
	logger *slog.Logger
	now    func() time.Time
}

func NewImageService(images repository.ImageStore, c *Collections, clubs *ClubService, opts imaging.Options, logger *slog.Logger) *ImageService {
	return &ImageService{
		images: images,
		users:  c.Users,
		clubs:  clubs,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// UploadImage processes r and stores it as actorID's avatar or, for
// ImageClub, as clubID's image (moderators and owners only).
func (s *ImageService) UploadImage(ctx context.Context, actorID string, imgType model.ImageType, clubID string, r io.Reader) (*model.Image, error) {
	if actorID == "" {
		return nil, apperror.Unauthorized("you must be signed in to upload images")
	}
	if !imgType.Valid() {
		return nil, apperror.ValidationFailed("type", fmt.Sprintf("image type must be %q or %q", model.ImageAvatar, model.ImageClub))
	}

	img := &model.Image{
		ID:        uuid.NewString(),
		Type:      imgType,
		CreatedAt: s.now(),
	}
	switch imgType {
	case model.ImageAvatar:
		img.UserID = actorID
	case model.ImageClub:
		if clubID == "" {
			return nil, apperror.ValidationFailed("clubId", "clubId is required for club images")
		}
		if _, err := s.clubs.GetClub(ctx, clubID); err != nil {
			return nil, err
		}
		ok, err := s.clubs.IsModerator(ctx, clubID, actorID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.Forbidden("only moderators and owners can change the club image")
		}
		img.ClubID = clubID
	}

	processed, err := imaging.Process(r, s.opts)
	if err != nil {
		if errors.Is(err, imaging.ErrTooLarge) || errors.Is(err, imaging.ErrUnsupported) || errors.Is(err, imaging.ErrInvalid) {
			return nil, apperror.ValidationFailed("file", err.Error())
		}
		return nil, fmt.Errorf("processing image: %w", err)
	}
	img.Data = processed.Data
	img.Size = int64(len(processed.Data))
	img.ContentType = imaging.OutputContentType

	if err := s.images.PutImage(ctx, img); err != nil {
		s.logger.Error("failed to store image", slog.String("image_id", img.ID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("storing image: %w", err)
	}

	if err := s.link(ctx, actorID, img); err != nil {
		s.logger.Error("image stored but not linked",
			slog.String("image_id", img.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("image uploaded",
		slog.String("image_id", img.ID),
		slog.String("type", string(img.Type)),
		slog.Int64("size", img.Size),
		slog.Int("width", processed.Width),
		slog.Int("height", processed.Height),
	)
	return img, nil
}

func (s *ImageService) link(ctx context.Context, actorID string, img *model.Image) error {
	if img.Type == model.ImageClub {
		id := img.ID
		_, err := s.clubs.UpdateClub(ctx, actorID, img.ClubID, ClubPatch{ImageID: &id})
		return err
	}
	return s.setAvatar(ctx, img.UserID, img.ID)
}

func (s *ImageService) setAvatar(ctx context.Context, userID, imageID string) error {
	_, err := s.users.Update(ctx, func(users []model.User) ([]model.User, error) {
		i := indexOfUser(users, userID)
		if i < 0 {
			return nil, apperror.NotFound("user", userID)
		}
		users[i].AvatarID = imageID
		return users, nil
	})
	return err
}

// GetImage returns the newest image owned by ownerKey (a user or club ID).
// It scans the whole store's metadata.
func (s *ImageService) GetImage(ctx context.Context, ownerKey string) (*model.Image, error) {
	images, err := s.images.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	for _, img := range images {
		if img.OwnedBy(ownerKey) {
			return s.images.GetImage(ctx, img.ID)
		}
	}
	return nil, apperror.NotFound("image for owner", ownerKey)
}

// GetVisibleImage is GetImage as seen by viewerID. The image of a private
// club is not found for non-members. Images of deleted clubs stay readable.
func (s *ImageService) GetVisibleImage(ctx context.Context, ownerKey, viewerID string) (*model.Image, error) {
	img, err := s.GetImage(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	if img.ClubID == "" {
		return img, nil
	}
	club, err := s.clubs.GetClub(ctx, img.ClubID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return img, nil
	case err != nil:
		return nil, err
	case club.IsPrivate && club.Member(viewerID) == nil:
		return nil, apperror.NotFound("image for owner", ownerKey)
	}
	return img, nil
}

func (s *ImageService) GetImageByID(ctx context.Context, id string) (*model.Image, error) {
	return s.images.GetImage(ctx, id)
}

// DeleteImage removes an image. The uploader of an avatar, or a moderator
// of the image's club, may delete it. Owner links pointing at it are cleared.
func (s *ImageService) DeleteImage(ctx context.Context, actorID, id string) error {
	img, err := s.images.GetImage(ctx, id)
	if err != nil {
		return err
	}

	allowed := img.UserID != "" && img.UserID == actorID
	if !allowed && img.ClubID != "" {
		if allowed, err = s.clubs.IsModerator(ctx, img.ClubID, actorID); err != nil {
			return err
		}
	}
	if !allowed {
		return apperror.Forbidden("you cannot delete this image")
	}

	if err := s.images.DeleteImage(ctx, id); err != nil {
		return err
	}

	if img.UserID != "" {
		s.clearAvatar(ctx, img.UserID, id)
	}
	if img.ClubID != "" {
		if club, err := s.clubs.GetClub(ctx, img.ClubID); err == nil && club.ImageID == id {
			empty := ""
			if _, err := s.clubs.UpdateClub(ctx, actorID, img.ClubID, ClubPatch{ImageID: &empty}); err != nil {
				s.logger.Warn("failed to unlink club image", slog.String("club_id", img.ClubID), slog.String("error", err.Error()))
			}
		}
	}

	s.logger.Info("image deleted", slog.String("image_id", id), slog.String("actor_id", actorID))
	return nil
}

func (s *ImageService) clearAvatar(ctx context.Context, userID, imageID string) {
	_, err := s.users.Update(ctx, func(users []model.User) ([]model.User, error) {
		i := indexOfUser(users, userID)
		if i < 0 || users[i].AvatarID != imageID {
			return nil, errUnchanged
		}
		users[i].AvatarID = ""
		return users, nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		s.logger.Warn("failed to unlink avatar", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
}
