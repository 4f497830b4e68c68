package storage

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// Minio implements Store on top of the minio client, for S3-compatible
// services authenticated with static keys.
type Minio struct {
	bucket string
	client *minio.Client
}

type MinioOptions struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Insecure        bool
}

func NewMinio(opts MinioOptions) (*Minio, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: !opts.Insecure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create client for %q: %w", opts.Endpoint, err)
	}
	return &Minio{bucket: opts.Bucket, client: client}, nil
}

func (s *Minio) Get(ctx context.Context, key string) (value []byte, err error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	defer func() {
		if err := object.Close(); err != nil {
			log.WithFields(log.Fields{
				"op":  "get",
				"key": key,
				"err": err,
			}).Warning("Could not close object reader")
		}
	}()
	// Errors from the request only show up when reading.
	value, err = ioutil.ReadAll(object)
	if err != nil {
		return nil, s.translate(key, err)
	}
	return value, nil
}

func (s *Minio) Put(ctx context.Context, key string, value []byte, contentType string) (err error) {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(value), int64(len(value)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *Minio) Delete(ctx context.Context, key string) (err error) {
	err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// List cancels the listing on return, which stops the client's lister goroutine
// when an error ends the loop early.
func (s *Minio) List(ctx context.Context, prefix string) (keys []string, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func (s *Minio) translate(key string, err error) error {
	response := minio.ToErrorResponse(err)
	if response.Code == "NoSuchKey" || response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	return err
}
