package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nurse-handover/backend/internal/errs"
)

// AudioStore persists uploaded recordings. Handles returned by Save are
// opaque to callers and stored on the handover row.
type AudioStore interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	// Delete is best effort and succeeds when the artifact is already gone.
	Delete(ctx context.Context, handle string) error
}

// AudioUpload is one file received from a client.
type AudioUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

var (
	errTooLarge = errors.New("audio exceeds size limit")
	plainExt    = regexp.MustCompile(`^\.[a-z0-9]{1,9}$`)
)

// AudioIngest validates uploads and hands them to an AudioStore under a
// collision-resistant name.
type AudioIngest struct {
	store    AudioStore
	maxBytes int64
	log      zerolog.Logger
}

func NewAudioIngest(store AudioStore, maxBytes int64, log zerolog.Logger) *AudioIngest {
	return &AudioIngest{store: store, maxBytes: maxBytes, log: log.With().Str("component", "audio").Logger()}
}

func (a *AudioIngest) MaxBytes() int64 {
	return a.maxBytes
}

func (a *AudioIngest) Validate(u AudioUpload) error {
	mediaType, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "audio/") {
		return errs.Validation("Only audio files are allowed")
	}
	if u.Size > a.maxBytes {
		return errs.Validation("audio file exceeds %d MB limit", a.maxBytes>>20)
	}
	return nil
}

// Save validates u and stores it. Bodies that turn out larger than declared
// are cut off at the limit and the partial artifact is removed.
func (a *AudioIngest) Save(ctx context.Context, u AudioUpload) (string, error) {
	if err := a.Validate(u); err != nil {
		return "", err
	}

	name := AudioFileName(u.Filename, time.Now())
	body := &limitedReader{r: u.Body, remaining: a.maxBytes}
	handle, err := a.store.Save(ctx, name, u.ContentType, body)
	if errors.Is(err, errTooLarge) {
		a.Discard(ctx, handle)
		return "", errs.Validation("audio file exceeds %d MB limit", a.maxBytes>>20)
	}
	if err != nil {
		return "", fmt.Errorf("store audio: %w", err)
	}

	a.log.Debug().Str("handle", handle).Int64("size", u.Size).Msg("audio stored")
	return handle, nil
}

// Discard deletes a stored artifact, logging instead of failing.
func (a *AudioIngest) Discard(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := a.store.Delete(ctx, handle); err != nil {
		a.log.Warn().Err(err).Str("handle", handle).Msg("failed to delete audio")
	}
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

// AudioFileName builds handover-<unix millis>-<random><ext>, keeping the
// original extension when it is plain.
func AudioFileName(original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	if !plainExt.MatchString(ext) {
		ext = ""
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("handover-%d-%s%s", now.UnixMilli(), suffix, ext)
}

// LocalAudioStore keeps recordings in a directory on disk. Handles are file
// paths.
type LocalAudioStore struct {
	dir string
}

func NewLocalAudioStore(dir string) (*LocalAudioStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalAudioStore{dir: dir}, nil
}

func (s *LocalAudioStore) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return path, err
	}
	return path, f.Close()
}

func (s *LocalAudioStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	path, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *LocalAudioStore) Delete(_ context.Context, handle string) error {
	path, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// resolve rejects handles that point outside the upload directory.
func (s *LocalAudioStore) resolve(handle string) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(handle))
	if filepath.Clean(handle) != path {
		return "", fmt.Errorf("audio handle %q is outside %s", handle, s.dir)
	}
	return path, nil
}

// S3API is the part of *s3.Client the audio store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3AudioStore keeps recordings in a bucket. Handles look like
// s3://bucket/key.
type S3AudioStore struct {
	client S3API
	bucket string
	prefix string
}

func NewS3AudioStore(client S3API, bucket, prefix string) *S3AudioStore {
	return &S3AudioStore{client: client, bucket: bucket, prefix: prefix}
}

func NewS3Client(cfg aws.Config) *s3.Client {
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	})
}

func (s *S3AudioStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	// PutObject needs a seekable body to sign the payload.
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := s.prefix + name
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *S3AudioStore) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	bucket, key, err := parseS3Handle(handle)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get s3 object: %w", err)
	}
	return out.Body, nil
}

func (s *S3AudioStore) Delete(ctx context.Context, handle string) error {
	bucket, key, err := parseS3Handle(handle)
	if err != nil {
		return err
	}
	// S3 reports success for keys that do not exist
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	return err
}

func parseS3Handle(handle string) (string, string, error) {
	rest, ok := strings.CutPrefix(handle, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 handle: %q", handle)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 handle: %q", handle)
	}
	return bucket, key, nil
}
