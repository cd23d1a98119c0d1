// services/media_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	cfg "github.com/wfunc/partyserver/config"
	"github.com/wfunc/partyserver/errs"
	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/persistence"
)

const maxMediaSize = 100 * 1024 * 1024 // 100MB covers recordings

// MediaService pushes screenshots and recordings to S3-compatible object
// storage and records the upload. A thin collaborator of the room core;
// nothing here touches membership state.
type MediaService struct {
	store      persistence.Store
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

func NewMediaService(mc cfg.MediaConfig, store persistence.Store) (*MediaService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(mc.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			mc.AccessKey, mc.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load media storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if mc.Endpoint != "" {
			o.BaseEndpoint = aws.String(mc.Endpoint)
		}
	})

	cdnBaseURL := mc.CDNBaseURL
	if cdnBaseURL == "" {
		cdnBaseURL = mc.Endpoint + "/" + mc.Bucket
	}

	return &MediaService{
		store:      store,
		client:     client,
		bucket:     mc.Bucket,
		cdnBaseURL: cdnBaseURL,
	}, nil
}

// Upload stores one multipart file and returns the recorded row with its
// public URL.
func (s *MediaService) Upload(ctx context.Context, userID int64, roomID, kind string, fileHeader *multipart.FileHeader) (*models.MediaUpload, error) {
	if kind != models.MediaKindScreenshot && kind != models.MediaKindRecording {
		return nil, errs.Validationf("kind must be screenshot or recording")
	}
	if fileHeader.Size > maxMediaSize {
		return nil, errs.Validationf("file too large (max 100MB)")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, errs.Internal(err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return nil, errs.Internal(err)
	}

	ext := filepath.Ext(fileHeader.Filename)
	if ext == "" {
		ext = ".bin"
	}
	key := kind + "s/" + uuid.NewString() + ext

	contentType := fileHeader.Header.Get("Content-Type")
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        buf,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("object storage upload failed: %w", err))
	}

	upload := &models.MediaUpload{
		ID:          uuid.New().String(),
		UserID:      userID,
		RoomID:      roomID,
		Kind:        kind,
		ObjectKey:   key,
		URL:         fmt.Sprintf("%s/%s", s.cdnBaseURL, key),
		ContentType: contentType,
		Size:        fileHeader.Size,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateMediaUpload(upload); err != nil {
		logger.Log.Warnw("uploaded object recorded with error", "key", key, "error", err)
		return nil, errs.Internal(err)
	}
	return upload, nil
}
