package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/repository"
)

var _ repository.VideoRepository = (*VideoStore)(nil)

// VideoStore persists the video catalogue.
type VideoStore struct {
	conn *sql.DB
}

const videoColumns = `id, title, description, video_url, thumbnail_url, content_type,
	is_published, created_at, updated_at`

func scanVideo(row rowScanner) (*model.Video, error) {
	var (
		v           model.Video
		description sql.NullString
		thumbnail   sql.NullString
	)
	err := row.Scan(
		&v.ID,
		&v.Title,
		&description,
		&v.MediaURL,
		&thumbnail,
		&v.Kind,
		&v.Published,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		v.Description = &description.String
	}
	if thumbnail.Valid {
		v.ThumbnailURL = &thumbnail.String
	}
	return &v, nil
}

// Create inserts a video, filling in ID and timestamps on v.
func (s *VideoStore) Create(ctx context.Context, v *model.Video) error {
	now := time.Now().UTC()
	v.ID = xid.New().String()
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.Kind == "" {
		v.Kind = model.KindVideo
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO videos (`+videoColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.Title,
		v.Description,
		v.MediaURL,
		v.ThumbnailURL,
		v.Kind,
		v.Published,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating video: %w", err)
	}
	return nil
}

func (s *VideoStore) GetByID(ctx context.Context, id string) (*model.Video, error) {
	v, err := scanVideo(s.conn.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("video", id)
		}
		return nil, fmt.Errorf("sqlite: getting video %s: %w", id, err)
	}
	return v, nil
}

// List returns videos newest first.
func (s *VideoStore) List(ctx context.Context, opts repository.VideoListOptions) ([]model.Video, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + videoColumns + ` FROM videos`
	if opts.PublishedOnly {
		query += ` WHERE is_published = 1`
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.conn.QueryContext(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing videos: %w", err)
	}
	defer rows.Close()

	videos := []model.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning video row: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating video rows: %w", err)
	}
	return videos, nil
}

// Update overwrites the mutable fields of v and bumps UpdatedAt.
func (s *VideoStore) Update(ctx context.Context, v *model.Video) error {
	v.UpdatedAt = time.Now().UTC()

	res, err := s.conn.ExecContext(ctx,
		`UPDATE videos
		 SET title = ?, description = ?, video_url = ?, thumbnail_url = ?,
		     content_type = ?, is_published = ?, updated_at = ?
		 WHERE id = ?`,
		v.Title,
		v.Description,
		v.MediaURL,
		v.ThumbnailURL,
		v.Kind,
		v.Published,
		v.UpdatedAt,
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating video %s: %w", v.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("video", v.ID)
	}
	return nil
}

func (s *VideoStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting video %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("video", id)
	}
	return nil
}
