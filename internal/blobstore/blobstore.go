// Package blobstore keeps uploaded test result files in S3 and announces them on SQS.
package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"curanova-server/internal/config"
)

const refScheme = "s3://"

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type queueAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Object describes a result file being stored.
type Object struct {
	PatientID   string
	TestID      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadMessage is sent to the result queue after a successful upload.
type UploadMessage struct {
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
	PatientID  string `json:"patientId"`
	TestID     string `json:"testId"`
	UploadedAt string `json:"uploadedAt"`
}

// ResultStore stores result files under results/<patient>/<test>/.
type ResultStore struct {
	objects  objectAPI
	presign  presignAPI
	queue    queueAPI
	bucket   string
	queueURL string
	expiry   time.Duration
	timeout  time.Duration
}

// New builds S3 and SQS clients from the default AWS credential chain.
// The queue is optional; without it uploads are not announced.
func New(ctx context.Context, cfg config.StorageConfig) (*ResultStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("results bucket not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Client := newS3Client(awsCfg)
	store := &ResultStore{
		objects: s3Client,
		presign: s3.NewPresignClient(s3Client),
		bucket:  cfg.Bucket,
		expiry:  cfg.PresignExpiry,
		timeout: cfg.RequestTimeout,
	}

	if cfg.ResultQueue != "" {
		sqsClient := sqs.NewFromConfig(awsCfg)
		qctx, cancel := store.withTimeout(ctx)
		defer cancel()
		resp, err := sqsClient.GetQueueUrl(qctx, &sqs.GetQueueUrlInput{QueueName: aws.String(cfg.ResultQueue)})
		if err != nil {
			return nil, fmt.Errorf("resolve queue %s: %w", cfg.ResultQueue, err)
		}
		store.queue = sqsClient
		store.queueURL = aws.ToString(resp.QueueUrl)
	}
	return store, nil
}

// newS3Client keeps the shared config's retryer, logger and endpoint
// resolution. Path-style addressing lets local S3 emulators serve the bucket.
func newS3Client(awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// Put uploads obj and returns its reference, s3://bucket/key.
func (s *ResultStore) Put(ctx context.Context, obj Object) (string, error) {
	key := objectKey(obj)
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	pctx, cancel := s.withTimeout(ctx)
	defer cancel()
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        obj.Body,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
		Metadata: map[string]string{
			"patient-id": obj.PatientID,
			"test-id":    obj.TestID,
		},
	}
	if obj.Size > 0 {
		in.ContentLength = aws.Int64(obj.Size)
	}
	if _, err := s.objects.PutObject(pctx, in); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	if s.queue != nil {
		if err := s.announce(ctx, key, obj); err != nil {
			return "", err
		}
	}
	return refScheme + s.bucket + "/" + key, nil
}

func (s *ResultStore) announce(ctx context.Context, key string, obj Object) error {
	body, err := json.Marshal(UploadMessage{
		Bucket:     s.bucket,
		Key:        key,
		PatientID:  obj.PatientID,
		TestID:     obj.TestID,
		UploadedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.queue.SendMessage(qctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("announce %s: %w", key, err)
	}
	return nil
}

// PresignURL returns a time-limited download link for ref.
func (s *ResultStore) PresignURL(ctx context.Context, ref string) (string, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	pctx, cancel := s.withTimeout(ctx)
	defer cancel()
	req, err := s.presign.PresignGetObject(pctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ref, err)
	}
	return req.URL, nil
}

// IsObjectRef reports whether ref points into object storage.
func IsObjectRef(ref string) bool {
	return strings.HasPrefix(ref, refScheme)
}

// ParseRef splits s3://bucket/key.
func ParseRef(ref string) (bucket, key string, err error) {
	if !IsObjectRef(ref) {
		return "", "", fmt.Errorf("not an object reference: %q", ref)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, refScheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed object reference: %q", ref)
	}
	return bucket, key, nil
}

func (s *ResultStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func objectKey(obj Object) string {
	name := path.Base(strings.ReplaceAll(obj.FileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "result"
	}
	return fmt.Sprintf("results/%s/%s/%s_%s", obj.PatientID, obj.TestID, uuid.NewString()[:8], name)
}
