package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/applock/internal/logging"
)

const (
	DefaultBufferSize = 64
	putTimeout        = 15 * time.Second
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// objectPutter is the part of *s3.Client the sink uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the bucket. Static credentials suit MinIO and similar
// S3-compatible stores.
type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	User       string
	Password   string
	BufferSize int
}

// S3Sink stores each event as one JSON object. Record only enqueues; a
// single worker uploads. Events are dropped with a warning when the
// buffer is full.
type S3Sink struct {
	client objectPutter
	bucket string
	logger logging.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewS3Sink builds the S3 client and starts the upload worker.
func NewS3Sink(ctx context.Context, c S3Config, l logging.Logger) (*S3Sink, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Sink(client, c.Bucket, c.BufferSize, l), nil
}

func newS3Sink(client objectPutter, bucket string, buffer int, l logging.Logger) *S3Sink {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	s := &S3Sink{
		client: client,
		bucket: bucket,
		logger: l.With("module", "audit_s3"),
		now:    time.Now,
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *S3Sink) Record(ctx context.Context, principal, event string, md map[string]string) {
	e := newEvent(principal, event, md, s.now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- e:
	default:
		s.logger.Warn(ctx, "audit buffer full, event dropped", "event", event, "principal", principal)
	}
}

// Close uploads what is queued and stops the worker.
func (s *S3Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
}

func (s *S3Sink) run() {
	defer close(s.done)
	for e := range s.queue {
		if err := s.put(e); err != nil {
			s.logger.Error(context.Background(), "audit upload failed", "event", e.Name, "error", err)
		}
	}
}

func (s *S3Sink) put(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(e)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

// ObjectKey is audit/<principal>/<RFC3339 timestamp>-<id>.json. Events
// without a principal go under "device".
func ObjectKey(e Event) string {
	principal := e.Principal
	if principal == "" {
		principal = "device"
	}
	return fmt.Sprintf("audit/%s/%s-%s.json", principal, e.At.UTC().Format(time.RFC3339), e.ID)
}
