package dashboard

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxPhotoBytes bounds how much of a selected file is read.
const DefaultMaxPhotoBytes = 10 << 20

// SetPhotoFromFile reads a selected image into a data URL and, once read,
// sets both the preview and the draft photo. With a photo host configured the
// draft photo becomes the hosted URL while the preview keeps the data URL.
//
// Reads are not cancelled or sequenced: when two selections overlap, the one
// that completes last wins, and a typed URL written in between is overwritten.
func (s *Session) SetPhotoFromFile(ctx context.Context, file io.Reader) error {
	return s.await(ctx, func() error {
		dataURL, err := s.readDataURL(file)
		if err != nil {
			s.log.Warn().Err(err).Msg("read photo failed")
			return err
		}

		photo := dataURL
		if s.photos != nil {
			res, err := s.photos.UploadDataURL(s.base, dataURL)
			if err != nil {
				s.log.Warn().Err(err).Msg("photo upload failed, keeping data url")
			} else {
				photo = res.SecureURL
			}
		}

		return s.loop.Do(s.base, "draft.photo_file", func() {
			s.preview = dataURL
			s.draft.Photo = photo
		})
	})
}

func (s *Session) readDataURL(file io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(file, s.maxPhoto+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > s.maxPhoto {
		return "", ErrPhotoTooLarge
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
