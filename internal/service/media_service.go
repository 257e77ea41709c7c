package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MediaService validates uploaded files, stores them in object storage,
// and records asset plus post_media rows inside the caller's
// transaction.
type MediaService interface {
	AttachFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, files []*multipart.FileHeader) error
	RemoveForPost(ctx context.Context, postID int64) error
}

type mediaService struct {
	ma repository.MediaAssetRepository
	pm repository.PostMediaRepository
	r2 *R2Service
}

func NewMediaService(ma repository.MediaAssetRepository, pm repository.PostMediaRepository, r2 *R2Service) MediaService {
	return &mediaService{ma: ma, pm: pm, r2: r2}
}

var allowedMediaTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
}

func (s *mediaService) AttachFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, files []*multipart.FileHeader) error {
	for i, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return validationErrorf("unsupported file type")
		}
		if _, ok := allowedMediaTypes[fileType.Extension]; !ok {
			return validationErrorf("file type %s is not allowed", fileType.Extension)
		}

		assetID, err := s.saveFile(ctx, tx, userID, fileType.MIME.Value, int64(len(fileBytes)), fileBytes)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      assetID,
			DisplayOrder: i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return nil
}

func (s *mediaService) saveFile(ctx context.Context, tx *sql.Tx, userID int64, fileType string, size int64, file []byte) (int64, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	if err := s.r2.UploadToR2(ctx, id, file, fileType); err != nil {
		return 0, err
	}

	ma := models.MediaAsset{
		UserID:   userID,
		FileName: id,
		FileType: fileType,
		FileSize: size,
		FileURL:  s.r2.PublicURL(id),
	}

	return s.ma.Create(ctx, tx, &ma)
}

func (s *mediaService) RemoveForPost(ctx context.Context, postID int64) error {
	medias, err := s.pm.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}

	for _, pm := range medias {
		// Asset rows go; object deletion in R2 is left to the retention
		// sweep since orphaned objects are harmless.
		if err := s.ma.Remove(ctx, pm.AssetID); err != nil {
			slog.Error("failed to remove media asset", "asset_id", pm.AssetID, "error", err)
		}
	}
	return s.pm.Remove(ctx, postID)
}
