package filestore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
)

// Upload - пара ссылок на загрузку и скачивание одного объекта
type Upload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"uploadUrl"`
	FileURL   string    `json:"fileUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store - хранилище файлов комнат. Все объекты лежат под rooms/{code}/
type Store interface {
	PresignUpload(ctx context.Context, roomCode, fileName string) (*Upload, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	// DeleteRoom удаляет все объекты комнаты и возвращает их число
	DeleteRoom(ctx context.Context, roomCode string) (int, error)
}

func RoomPrefix(roomCode string) string {
	return "rooms/" + roomCode + "/"
}

// ObjectKey строит ключ объекта, отбрасывая из имени файла компоненты пути
func ObjectKey(roomCode, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}

	return RoomPrefix(roomCode) + uuid.NewString() + "-" + name
}

type minioStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return client, nil
}

func NewMinioStore(ctx context.Context, client *minio.Client, bucket string, expiry time.Duration) (Store, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}

	if !exists {
		if err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	return &minioStore{client: client, bucket: bucket, expiry: expiry}, nil
}

func (s *minioStore) PresignUpload(ctx context.Context, roomCode, fileName string) (*Upload, error) {
	key := ObjectKey(roomCode, fileName)

	putURL, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	getURL, err := s.PresignDownload(ctx, key)
	if err != nil {
		return nil, err
	}

	return &Upload{
		Key:       key,
		UploadURL: putURL.String(),
		FileURL:   getURL,
		ExpiresAt: time.Now().Add(s.expiry),
	}, nil
}

func (s *minioStore) PresignDownload(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}

	return u.String(), nil
}

func (s *minioStore) DeleteRoom(ctx context.Context, roomCode string) (int, error) {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    RoomPrefix(roomCode),
		Recursive: true,
	})

	toDelete := make(chan minio.ObjectInfo)
	counted := make(chan int, 1)

	// удаление идёт пачками параллельно с листингом
	go func() {
		defer close(toDelete)

		n := 0
		for obj := range objects {
			if obj.Err != nil {
				log.Warn().Err(obj.Err).Str(constant.RoomCode, roomCode).Msg("list room objects")
				continue
			}
			select {
			case toDelete <- obj:
				n++
			case <-ctx.Done():
				counted <- n
				return
			}
		}
		counted <- n
	}()

	var firstErr error
	for res := range s.client.RemoveObjects(ctx, s.bucket, toDelete, minio.RemoveObjectsOptions{}) {
		if res.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", res.ObjectName, res.Err)
		}
	}

	return <-counted, firstErr
}

type noopStore struct{}

// NewNoopStore используется, когда файловое хранилище не настроено
func NewNoopStore() Store {
	return noopStore{}
}

func (noopStore) PresignUpload(context.Context, string, string) (*Upload, error) {
	return nil, ErrDisabled
}

func (noopStore) PresignDownload(context.Context, string) (string, error) {
	return "", ErrDisabled
}

func (noopStore) DeleteRoom(context.Context, string) (int, error) {
	return 0, nil
}
