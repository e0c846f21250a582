package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/muzz-events/internal/errors"
)

const (
	// MaxImageSize bounds one uploaded image.
	MaxImageSize = 5 << 20
	imageURLTTL  = 15 * time.Minute
)

var (
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

	errNoImageStore = errors.New("image storage is not configured")
)

// ImageStore is the object store behind profile images.
type ImageStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// WithImageStore enables image upload. Without a store the image operations fail.
func (s *Service) WithImageStore(store ImageStore) *Service {
	s.images = store
	return s
}

// Image is a user's stored profile image.
type Image struct {
	UserID   uint64 `json:"user_auth_id"`
	Email    string `json:"email"`
	ImageRef string `json:"imageString"`
	URL      string `json:"image_url"`
}

// UploadImage stores the image and points the user's profile at it.
// Returns true when the profile had no image before.
//
// Behavior:
//   - Only png, jpg, jpeg and gif file names are accepted.
//   - The user needs a profile, the reference lives on it.
//   - A replaced image object is removed after the profile is updated.
func (s *Service) UploadImage(ctx context.Context, email, fileName, contentType string, body io.Reader, size int64) (*Image, bool, error) {
	if s.images == nil {
		return nil, false, svcErr.Map(errNoImageStore)
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	if !slices.Contains(imageExtensions, ext) {
		return nil, false, svcErr.InvalidArgument("Invalid image format")
	}
	if size <= 0 || size > MaxImageSize {
		return nil, false, svcErr.InvalidArgument("Image must be between 1 byte and 5 MiB")
	}

	u, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if u.Profile == nil {
		return nil, false, svcErr.NotFound("Profile not found")
	}
	previous := u.Profile.ImageRef

	if err := s.images.EnsureBucket(ctx); err != nil {
		return nil, false, svcErr.Map(err)
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("users/%d/images/%s%s", u.ID, uuid.NewString(), ext)
	if err := s.images.Put(ctx, key, body, size, contentType); err != nil {
		s.appCtx.Logger.Error("image upload failed", "user", u.ID, "err", err)
		return nil, false, svcErr.Map(err)
	}

	if _, err := s.users.SetImageRef(ctx, u.ID, key); err != nil {
		if delErr := s.images.Delete(ctx, key); delErr != nil {
			s.appCtx.Logger.Warn("failed to remove orphaned image", "key", key, "err", delErr)
		}
		return nil, false, svcErr.Map(err)
	}
	if previous != "" && previous != key {
		if err := s.images.Delete(ctx, previous); err != nil {
			s.appCtx.Logger.Warn("failed to remove replaced image", "key", previous, "err", err)
		}
	}

	img, err := s.imageOf(ctx, u.ID, u.Email, key)
	if err != nil {
		return nil, false, err
	}
	return img, previous == "", nil
}

// GetImage returns the user's current image with a short lived download URL.
func (s *Service) GetImage(ctx context.Context, userID uint64) (*Image, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("No image found for the given user_auth_id")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if u.Profile == nil || u.Profile.ImageRef == "" {
		return nil, svcErr.NotFound("No image found for the given user_auth_id")
	}
	if s.images == nil {
		return nil, svcErr.Map(errNoImageStore)
	}
	return s.imageOf(ctx, u.ID, u.Email, u.Profile.ImageRef)
}

func (s *Service) imageOf(ctx context.Context, userID uint64, email, key string) (*Image, error) {
	link, err := s.images.PresignGet(ctx, key, imageURLTTL)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &Image{UserID: userID, Email: email, ImageRef: key, URL: link}, nil
}
