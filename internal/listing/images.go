package listing

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ramallah-time/internal/access"
	"ramallah-time/internal/events"
	"ramallah-time/internal/models"
)

var allowedImageExt = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// Upload is one file of a multi-image upload.
type Upload struct {
	Filename string
	Data     []byte
}

// ImageExtension returns the lowercased extension of filename when it is an
// accepted image type.
func ImageExtension(filename string) (string, bool) {
	base := filepath.Base(strings.TrimSpace(filename))
	dot := strings.LastIndex(base, ".")
	if dot < 0 || dot == len(base)-1 {
		return "", false
	}
	ext := strings.ToLower(strings.TrimSpace(base[dot+1:]))
	return ext, allowedImageExt[ext]
}

// UploadImages stores images for a listing and returns their locators.
// Every filename is checked before anything is written.
func (s *Service) UploadImages(ctx context.Context, credential string, id uint, uploads []Upload) ([]string, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.requirePrivileged(credential, l)
	if err != nil {
		return nil, err
	}
	if c == access.Owner && l.Status(s.now()).Expired() {
		return nil, newError(ErrExpired, "subscription expired. you cannot upload images right now.")
	}

	if len(uploads) == 0 {
		return nil, validationError("no images were uploaded")
	}
	if len(uploads) > s.cfg.MaxUploadFiles {
		return nil, validationError("you can upload at most %d images at once", s.cfg.MaxUploadFiles)
	}
	exts := make([]string, len(uploads))
	for i, u := range uploads {
		ext, ok := ImageExtension(u.Filename)
		if !ok {
			return nil, validationError("unsupported file type; please upload images only")
		}
		if int64(len(u.Data)) > s.cfg.MaxFileBytes {
			return nil, validationError("%s is larger than %d MB", filepath.Base(u.Filename), s.cfg.MaxFileBytes/(1024*1024))
		}
		exts[i] = ext
	}

	nextOrder := 0
	for _, img := range l.Images {
		if img.SortOrder >= nextOrder {
			nextOrder = img.SortOrder + 1
		}
	}

	var (
		saved  []string
		images []models.ListingImage
	)
	for i, u := range uploads {
		if len(u.Data) == 0 {
			continue
		}
		data := u.Data
		ext := exts[i]
		if s.images != nil {
			processed, err := s.images.Process(ext, data)
			if err != nil {
				log.Printf("Images: rejected upload %q for place %d: %v", filepath.Base(u.Filename), id, err)
				s.removeFiles(ctx, saved)
				return nil, validationError("%s is not a readable image", filepath.Base(u.Filename))
			}
			data = processed
		}

		locator, err := s.files.Save(ctx, uuid.NewString()+"."+ext, data)
		if err != nil {
			log.Printf("Images: failed to save upload for place %d: %v", id, err)
			s.removeFiles(ctx, saved)
			return nil, storageError()
		}
		saved = append(saved, locator)
		images = append(images, models.ListingImage{
			ListingID: id,
			ImageURL:  locator,
			SortOrder: nextOrder,
			CreatedAt: s.now(),
		})
		nextOrder++
	}
	if len(images) == 0 {
		return nil, validationError("all uploaded files were empty")
	}

	if err := s.store.AddImages(ctx, images); err != nil {
		log.Printf("Images: failed to record %d images for place %d: %v", len(images), id, err)
		s.removeFiles(ctx, saved)
		return nil, storageError()
	}
	log.Printf("Images: stored %d images for place %d", len(saved), id)

	s.publish(ctx, events.ImagesUploaded, l, c)
	return saved, nil
}

// DeleteImage removes one image row, then its file on a best-effort basis.
func (s *Service) DeleteImage(ctx context.Context, credential string, imageID uint) error {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrNotFound, "image not found")
		}
		log.Printf("Images: failed to load image %d: %v", imageID, err)
		return storageError()
	}
	l, err := s.load(ctx, img.ListingID)
	if err != nil {
		return err
	}
	c, err := s.requirePrivileged(credential, l)
	if err != nil {
		return err
	}

	if err := s.store.DeleteImage(ctx, imageID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrNotFound, "image not found")
		}
		log.Printf("Images: failed to delete image row %d: %v", imageID, err)
		return storageError()
	}
	s.removeFiles(ctx, []string{img.ImageURL})
	s.publish(ctx, events.ImageDeleted, l, c)
	return nil
}

// Delete removes a listing with its images and writes a delete log.
// Image files are removed first on a best-effort basis.
func (s *Service) Delete(ctx context.Context, credential string, id uint) error {
	l, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	c, err := s.requirePrivileged(credential, l)
	if err != nil {
		return err
	}

	locators := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		locators = append(locators, img.ImageURL)
	}
	s.removeFiles(ctx, locators)

	reason := models.DeleteReasonOwner
	if c == access.Admin {
		reason = models.DeleteReasonAdmin
	}
	if err := s.store.DeleteListing(ctx, l, reason); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound()
		}
		log.Printf("Listings: failed to delete place %d: %v", id, err)
		return storageError()
	}
	log.Printf("Listings: deleted place %d with %d images (%s)", id, len(locators), reason)

	s.unindex(ctx, id)
	s.publish(ctx, events.ListingDeleted, l, c)
	return nil
}

func (s *Service) removeFiles(ctx context.Context, locators []string) {
	if s.files == nil {
		return
	}
	for _, loc := range locators {
		if err := s.files.Delete(ctx, loc); err != nil {
			log.Printf("Images: failed to remove file %s: %v", loc, err)
		}
	}
}
