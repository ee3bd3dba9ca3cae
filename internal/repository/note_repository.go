package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"parchment/internal/models"
)

const noteColumns = `id, owner_id, title, content, image_url, image_key, created_at, updated_at`

type NoteRepository struct {
	db DBTX
}

func NewNoteRepository(db DBTX) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Create(ctx context.Context, note models.Note) error {
	const query = `
		INSERT INTO notes (
			id, owner_id, title, content, image_url, image_key, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.Exec(ctx, query,
		note.ID,
		note.OwnerID,
		note.Title,
		note.Content,
		note.ImageURL,
		note.ImageKey,
		note.CreatedAt,
		note.UpdatedAt,
	)
	return err
}

func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]models.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (r *NoteRepository) GetByOwner(ctx context.Context, ownerID string, id string) (models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1 AND owner_id = $2`

	note, err := scanNote(r.db.QueryRow(ctx, query, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Note{}, ErrNoteNotFound
	}
	return note, err
}

// Update writes title, content and image of a note the owner holds.
func (r *NoteRepository) Update(ctx context.Context, note models.Note) error {
	const query = `
		UPDATE notes
		SET title = $3,
		    content = $4,
		    image_url = $5,
		    image_key = $6,
		    updated_at = $7
		WHERE id = $1 AND owner_id = $2
	`
	cmd, err := r.db.Exec(ctx, query,
		note.ID,
		note.OwnerID,
		note.Title,
		note.Content,
		note.ImageURL,
		note.ImageKey,
		note.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// DeleteByOwner removes the note and returns what was removed.
func (r *NoteRepository) DeleteByOwner(ctx context.Context, ownerID string, id string) (models.Note, error) {
	query := `DELETE FROM notes WHERE id = $1 AND owner_id = $2 RETURNING ` + noteColumns

	note, err := scanNote(r.db.QueryRow(ctx, query, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Note{}, ErrNoteNotFound
	}
	return note, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (models.Note, error) {
	var note models.Note
	err := row.Scan(
		&note.ID,
		&note.OwnerID,
		&note.Title,
		&note.Content,
		&note.ImageURL,
		&note.ImageKey,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	return note, err
}
