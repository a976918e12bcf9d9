package model

import "time"

// ImageType tags what an image is used for.
type ImageType string

const (
	ImageAvatar ImageType = "avatar"
	ImageClub   ImageType = "club"
)

func (t ImageType) Valid() bool {
	return t == ImageAvatar || t == ImageClub
}

// Image is a stored blob linked to either a user (avatars) or a club.
// Data is empty when the record comes from a metadata-only listing.
type Image struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId,omitempty"`
	ClubID      string    `json:"clubId,omitempty"`
	Type        ImageType `json:"type"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	Data        []byte    `json:"-"`
}

// OwnedBy reports whether ownerKey is this image's user or club.
func (img *Image) OwnedBy(ownerKey string) bool {
	if ownerKey == "" {
		return false
	}
	return img.UserID == ownerKey || img.ClubID == ownerKey
}
