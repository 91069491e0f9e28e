package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/policy"
	"github.com/sakif/video-portal/internal/repository"
	"github.com/sakif/video-portal/internal/storage"
)

// Upload limits.
const (
	MaxVideoSize     = 500 << 20
	MaxThumbnailSize = 10 << 20
)

var (
	videoTypes = map[string]bool{
		"video/mp4":        true,
		"video/webm":       true,
		"video/x-matroska": true,
		"video/quicktime":  true,
	}
	thumbnailTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
		"image/gif":  true,
	}

	driveFilePattern = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveOpenPattern = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	unsafeKeyChars   = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// ConvertDriveURL rewrites a Google Drive share link into a direct download
// link. Anything else is returned unchanged.
func ConvertDriveURL(raw string) string {
	if !strings.Contains(raw, "drive.google.com") {
		return raw
	}
	for _, re := range []*regexp.Regexp{driveFilePattern, driveOpenPattern} {
		if m := re.FindStringSubmatch(raw); m != nil {
			return "https://drive.google.com/uc?export=download&id=" + m[1]
		}
	}
	return raw
}

// Buckets names the object storage buckets media goes into.
type Buckets struct {
	Video     string
	Thumbnail string
}

// LinkInput describes a video hosted elsewhere.
type LinkInput struct {
	Title        string
	Description  string
	VideoURL     string
	ThumbnailURL string
	Published    bool
}

// File is one uploaded part of a multipart request.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadInput describes a video uploaded to our storage.
type UploadInput struct {
	Title       string
	Description string
	Published   bool
	Video       *File
	Thumbnail   *File
}

// VideoService manages the catalogue and the media behind it.
type VideoService struct {
	videos  repository.VideoRepository
	blobs   storage.BlobStore
	buckets Buckets
	logger  *slog.Logger
}

// NewVideoService builds a VideoService. blobs may be nil, in which case
// only external links can be added and deletes skip media removal.
func NewVideoService(videos repository.VideoRepository, blobs storage.BlobStore, buckets Buckets, logger *slog.Logger) *VideoService {
	return &VideoService{
		videos:  videos,
		blobs:   blobs,
		buckets: buckets,
		logger:  logger,
	}
}

func requireManage(role model.Role) error {
	if d := policy.Decide(role, policy.ActionManageVideos); !d.Allowed {
		return apperror.Forbidden(d.Message)
	}
	return nil
}

// CreateLink adds an externally hosted video.
func (s *VideoService) CreateLink(ctx context.Context, actor model.Role, in LinkInput) (*model.Video, error) {
	if err := requireManage(actor); err != nil {
		return nil, err
	}

	videoURL := strings.TrimSpace(in.VideoURL)
	title := strings.TrimSpace(in.Title)
	if videoURL == "" {
		return nil, apperror.ValidationFailed("videoUrl", "Video URL is required")
	}
	if title == "" {
		return nil, apperror.ValidationFailed("title", "Title is required")
	}

	v := &model.Video{
		Title:       title,
		Description: optional(in.Description),
		MediaURL:    ConvertDriveURL(videoURL),
		Kind:        model.KindLink,
		Published:   in.Published,
	}
	if thumb := strings.TrimSpace(in.ThumbnailURL); thumb != "" {
		converted := ConvertDriveURL(thumb)
		v.ThumbnailURL = &converted
	}

	if err := s.videos.Create(ctx, v); err != nil {
		s.logger.Error("failed to save video link",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating video: %w", err)
	}

	s.logger.Info("video link added", slog.String("id", v.ID), slog.String("title", v.Title))
	return v, nil
}

// CreateFromUpload stores the uploaded media and records the video. If a
// later step fails the objects already written are removed again.
func (s *VideoService) CreateFromUpload(ctx context.Context, actor model.Role, in UploadInput) (*model.Video, error) {
	if err := requireManage(actor); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if in.Video == nil {
		return nil, apperror.ValidationFailed("video", "Video file is required")
	}
	if title == "" {
		return nil, apperror.ValidationFailed("title", "Title is required")
	}
	if !videoTypes[in.Video.ContentType] {
		return nil, apperror.ValidationFailed("video", "Invalid video format. Accepted: MP4, WEBM, MKV, MOV")
	}
	if in.Thumbnail != nil {
		if !thumbnailTypes[in.Thumbnail.ContentType] {
			return nil, apperror.ValidationFailed("thumbnail", "Invalid thumbnail format. Accepted: JPEG, PNG, WEBP, GIF")
		}
		if in.Thumbnail.Size > MaxThumbnailSize {
			return nil, apperror.ValidationFailed("thumbnail", "Thumbnail file too large (max 10MB)")
		}
	}
	if in.Video.Size > MaxVideoSize {
		return nil, apperror.ValidationFailed("video",
			"Video file too large. Maximum size is 500MB. For larger files, please compress your video or split it into smaller parts.")
	}
	if s.blobs == nil {
		return nil, apperror.Misconfigured("Media storage is not configured")
	}

	base := xid.New().String() + "-" + unsafeKeyChars.ReplaceAllString(title, "_")

	videoKey := base + extension(in.Video.Name)
	videoURL, err := s.blobs.Put(ctx, s.buckets.Video, videoKey, in.Video.ContentType, in.Video.Body, in.Video.Size)
	if err != nil {
		s.logger.Error("video upload failed", slog.String("key", videoKey), slog.String("error", err.Error()))
		return nil, apperror.Upstream("Failed to upload video", err)
	}

	var thumbKey string
	var thumbURL *string
	if in.Thumbnail != nil {
		thumbKey = base + extension(in.Thumbnail.Name)
		u, err := s.blobs.Put(ctx, s.buckets.Thumbnail, thumbKey, in.Thumbnail.ContentType, in.Thumbnail.Body, in.Thumbnail.Size)
		if err != nil {
			s.logger.Error("thumbnail upload failed", slog.String("key", thumbKey), slog.String("error", err.Error()))
			s.removeBlobs(ctx, blobRef{s.buckets.Video, videoKey})
			return nil, apperror.Upstream("Failed to upload thumbnail", err)
		}
		thumbURL = &u
	}

	v := &model.Video{
		Title:        title,
		Description:  optional(in.Description),
		MediaURL:     videoURL,
		ThumbnailURL: thumbURL,
		Kind:         model.KindVideo,
		Published:    in.Published,
	}
	if err := s.videos.Create(ctx, v); err != nil {
		s.logger.Error("failed to save uploaded video", slog.String("error", err.Error()))
		refs := []blobRef{{s.buckets.Video, videoKey}}
		if thumbKey != "" {
			refs = append(refs, blobRef{s.buckets.Thumbnail, thumbKey})
		}
		s.removeBlobs(ctx, refs...)
		return nil, fmt.Errorf("creating video: %w", err)
	}

	s.logger.Info("video uploaded",
		slog.String("id", v.ID),
		slog.String("key", videoKey),
		slog.Int64("size", in.Video.Size),
	)
	return v, nil
}

// Update changes the title and description of a video.
func (s *VideoService) Update(ctx context.Context, actor model.Role, id, title, description string) (*model.Video, error) {
	if err := requireManage(actor); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "Title is required")
	}

	v, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Title = title
	v.Description = optional(description)

	if err := s.videos.Update(ctx, v); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Video not found")
		}
		return nil, fmt.Errorf("updating video: %w", err)
	}

	s.logger.Info("video updated", slog.String("id", v.ID))
	return v, nil
}

// Delete removes a video and, best effort, the media objects behind it.
func (s *VideoService) Delete(ctx context.Context, actor model.Role, id string) error {
	if err := requireManage(actor); err != nil {
		return err
	}

	v, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	if v.Kind == model.KindVideo {
		refs := []blobRef{{s.buckets.Video, storage.KeyFromURL(v.MediaURL)}}
		if v.ThumbnailURL != nil {
			refs = append(refs, blobRef{s.buckets.Thumbnail, storage.KeyFromURL(*v.ThumbnailURL)})
		}
		s.removeBlobs(ctx, refs...)
	}

	if err := s.videos.Delete(ctx, v.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFoundMessage("Video not found")
		}
		return fmt.Errorf("deleting video: %w", err)
	}

	s.logger.Info("video deleted", slog.String("id", v.ID))
	return nil
}

// Get returns one video for viewing. Guests are sent to the upgrade page;
// unpublished videos exist only for staff.
func (s *VideoService) Get(ctx context.Context, viewer model.Role, id string) (*model.Video, error) {
	v, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.Published && !viewer.IsStaff() {
		return nil, apperror.NotFoundMessage("Video not found")
	}
	if d := policy.Decide(viewer, policy.ActionViewVideo); !d.Allowed {
		return nil, &ViewDeniedError{Decision: d}
	}
	return v, nil
}

// ViewDeniedError carries the policy decision for a refused view so the
// caller can surface the redirect.
type ViewDeniedError struct {
	Decision policy.Decision
}

func (e *ViewDeniedError) Error() string { return e.Decision.Message }

func (e *ViewDeniedError) Unwrap() error { return apperror.ErrForbidden }

// List pages through the catalogue. Staff see unpublished videos too. For
// viewers without access every entry is marked locked and its media URL is
// removed.
func (s *VideoService) List(ctx context.Context, viewer model.Role, limit, offset int) ([]model.Video, error) {
	limit, offset = clampPage(limit, offset)

	videos, err := s.videos.List(ctx, repository.VideoListOptions{
		ListOptions:   repository.ListOptions{Limit: limit, Offset: offset},
		PublishedOnly: !viewer.IsStaff(),
	})
	if err != nil {
		s.logger.Error("failed to list videos", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing videos: %w", err)
	}

	if !policy.Allowed(viewer, policy.ActionViewVideo) {
		for i := range videos {
			videos[i].Locked = true
			videos[i].MediaURL = ""
		}
	}
	return videos, nil
}

func (s *VideoService) get(ctx context.Context, id string) (*model.Video, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "Video ID is required")
	}
	v, err := s.videos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Video not found")
		}
		return nil, err
	}
	return v, nil
}

type blobRef struct {
	bucket string
	key    string
}

// removeBlobs deletes objects concurrently. Failures are logged only.
func (s *VideoService) removeBlobs(ctx context.Context, refs ...blobRef) {
	if s.blobs == nil {
		return
	}
	var g errgroup.Group
	for _, ref := range refs {
		if ref.bucket == "" || ref.key == "" {
			continue
		}
		g.Go(func() error {
			if err := s.blobs.Delete(ctx, ref.bucket, ref.key); err != nil {
				s.logger.Error("failed to delete media object",
					slog.String("bucket", ref.bucket),
					slog.String("key", ref.key),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func extension(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext)
}
