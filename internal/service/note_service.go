package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"parchment/internal/ids"
	"parchment/internal/models"
	"parchment/internal/queue"
	"parchment/internal/repository"
)

type NoteStore interface {
	Create(ctx context.Context, note models.Note) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.Note, error)
	GetByOwner(ctx context.Context, ownerID string, id string) (models.Note, error)
	Update(ctx context.Context, note models.Note) error
	DeleteByOwner(ctx context.Context, ownerID string, id string) (models.Note, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, input ImageUpload) (StoredImage, error)
	Bucket() string
}

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type NoteInput struct {
	Title   string
	Content string
	Image   *ImageUpload
}

type NoteService struct {
	notes    NoteStore
	images   ImageUploader
	queue    Enqueuer
	sanitize *bluemonday.Policy
	log      zerolog.Logger
	now      func() time.Time
}

func NewNoteService(notes NoteStore, images ImageUploader, q Enqueuer, log zerolog.Logger) *NoteService {
	return &NoteService{
		notes:    notes,
		images:   images,
		queue:    q,
		sanitize: bluemonday.UGCPolicy(),
		log:      log.With().Str("component", "notes").Logger(),
		now:      time.Now,
	}
}

func (s *NoteService) Create(ctx context.Context, ownerID string, input NoteInput) (models.Note, error) {
	title := strings.TrimSpace(input.Title)
	content := s.cleanContent(input.Content)
	if title == "" {
		return models.Note{}, invalidInput("title is required")
	}
	if content == "" {
		return models.Note{}, invalidInput("content is required")
	}

	now := s.now().UTC()
	note := models.Note{
		ID:        ids.New(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if input.Image != nil {
		stored, err := s.uploadImage(ctx, *input.Image)
		if err != nil {
			return models.Note{}, err
		}
		note.ImageURL = stored.URL
		note.ImageKey = stored.Key
	}

	if err := s.notes.Create(ctx, note); err != nil {
		s.scheduleImageDelete(ctx, note.ImageKey)
		return models.Note{}, persistenceError("create note", err)
	}
	return note, nil
}

// List returns the owner's notes, newest first.
func (s *NoteService) List(ctx context.Context, ownerID string) ([]models.Note, error) {
	notes, err := s.notes.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, persistenceError("list notes", err)
	}
	return notes, nil
}

// Update changes only the fields present in input. A new image replaces the
// previous one, which is then removed in the background.
func (s *NoteService) Update(ctx context.Context, ownerID string, noteID string, input NoteInput) (models.Note, error) {
	title := strings.TrimSpace(input.Title)
	content := s.cleanContent(input.Content)
	if title == "" && content == "" && input.Image == nil {
		return models.Note{}, invalidInput("nothing to update")
	}

	note, err := s.notes.GetByOwner(ctx, ownerID, noteID)
	if err != nil {
		return models.Note{}, noteStoreError("find note", err)
	}

	if title != "" {
		note.Title = title
	}
	if content != "" {
		note.Content = content
	}

	previousKey := ""
	if input.Image != nil {
		stored, err := s.uploadImage(ctx, *input.Image)
		if err != nil {
			return models.Note{}, err
		}
		previousKey = note.ImageKey
		note.ImageURL = stored.URL
		note.ImageKey = stored.Key
	}
	note.UpdatedAt = s.now().UTC()

	if err := s.notes.Update(ctx, note); err != nil {
		if input.Image != nil {
			s.scheduleImageDelete(ctx, note.ImageKey)
		}
		return models.Note{}, noteStoreError("update note", err)
	}

	s.scheduleImageDelete(ctx, previousKey)
	return note, nil
}

func (s *NoteService) Delete(ctx context.Context, ownerID string, noteID string) error {
	note, err := s.notes.DeleteByOwner(ctx, ownerID, noteID)
	if err != nil {
		return noteStoreError("delete note", err)
	}
	s.scheduleImageDelete(ctx, note.ImageKey)
	return nil
}

func (s *NoteService) cleanContent(content string) string {
	return strings.TrimSpace(s.sanitize.Sanitize(content))
}

func (s *NoteService) uploadImage(ctx context.Context, image ImageUpload) (StoredImage, error) {
	if s.images == nil {
		return StoredImage{}, invalidInput("image uploads are disabled")
	}
	return s.images.Upload(ctx, image)
}

// scheduleImageDelete is best effort; an orphaned object is logged, not returned.
func (s *NoteService) scheduleImageDelete(ctx context.Context, key string) {
	if key == "" || s.queue == nil || s.images == nil {
		return
	}
	task := queue.Task{Type: queue.TaskImageDelete, Bucket: s.images.Bucket(), Object: key}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.log.Warn().Err(err).Str("object", key).Msg("enqueue image delete failed")
	}
}

func noteStoreError(op string, err error) error {
	if errors.Is(err, repository.ErrNoteNotFound) {
		return ErrNoteNotFound
	}
	return persistenceError(op, err)
}
