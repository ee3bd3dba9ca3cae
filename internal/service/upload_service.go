package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"parchment/internal/ids"
	"parchment/internal/media/sniffer"
	"parchment/internal/security"
)

// ImageUpload is an image file as received from the client.
type ImageUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type StoredImage struct {
	Key  string
	URL  string
	MIME string
	Size int64
}

type ObjectPutter interface {
	PutImage(ctx context.Context, key string, body io.Reader, size int64, contentType string, signature string) error
	PublicURL(key string) string
	Bucket() string
}

type UploadService struct {
	store           ObjectPutter
	maxBytes        int64
	signatureSecret string
	now             func() time.Time
}

func NewUploadService(store ObjectPutter, maxBytes int64, signatureSecret string) *UploadService {
	return &UploadService{
		store:           store,
		maxBytes:        maxBytes,
		signatureSecret: signatureSecret,
		now:             time.Now,
	}
}

func (s *UploadService) Bucket() string {
	return s.store.Bucket()
}

func (s *UploadService) Upload(ctx context.Context, input ImageUpload) (StoredImage, error) {
	if input.Body == nil {
		return StoredImage{}, invalidInput("image is empty")
	}

	detected, head, err := sniffer.Detect(input.Body)
	switch {
	case err != nil && !errors.Is(err, sniffer.ErrUnknownType):
		return StoredImage{}, fmt.Errorf("read image: %w", err)
	case len(head) == 0:
		return StoredImage{}, invalidInput("image is empty")
	case err != nil:
		return StoredImage{}, invalidInput("only jpeg, png, gif and webp images are accepted")
	}
	if input.ContentType != "" && input.ContentType != detected.MIME {
		return StoredImage{}, invalidInput("content type mismatch: declared %s, actual %s", input.ContentType, detected.MIME)
	}

	body := io.MultiReader(bytes.NewReader(head), input.Body)
	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return StoredImage{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return StoredImage{}, invalidInput("image exceeds %d bytes", s.maxBytes)
	}

	key := s.objectKey(ids.New(), detected.Extension())
	signature := security.SignResource(s.signatureSecret, key)

	if err := s.store.PutImage(ctx, key, bytes.NewReader(data), int64(len(data)), detected.MIME, signature); err != nil {
		return StoredImage{}, persistenceError("store image", err)
	}

	return StoredImage{
		Key:  key,
		URL:  s.store.PublicURL(key),
		MIME: detected.MIME,
		Size: int64(len(data)),
	}, nil
}

func (s *UploadService) objectKey(id string, ext string) string {
	datePrefix := s.now().UTC().Format("2006/01/02")
	return path.Join("notes", datePrefix, id+"."+ext)
}
