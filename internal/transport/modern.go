package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/evidenceworks/reqforms/internal/config"
)

// ErrNotConfigured is returned when the object-store backend has no bucket
// configured.
var ErrNotConfigured = errors.New("object store transport not configured")

// objectClient defines the minimal minio.Client operations used by
// ObjectStoreTransport. This interface enables testing with mocks.
type objectClient interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStoreTransport inserts submission records into S3-compatible
// storage. The record lands at {requestType}/{id}/record.json with each
// attachment stored raw under the same prefix.
type ObjectStoreTransport struct {
	client objectClient
	bucket string
}

// NewObjectStore creates the modern transport from configuration.
// Returns ErrNotConfigured when no bucket is set.
func NewObjectStore(cfg config.ObjectStoreConfig) (*ObjectStoreTransport, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	return &ObjectStoreTransport{client: client, bucket: cfg.Bucket}, nil
}

// record is the JSON object the modern backend consumes.
type record struct {
	RequestType      string             `json:"requestType"`
	FormData         map[string]any     `json:"formData"`
	RequestingEmail  string             `json:"requestingEmail"`
	RequestingName   string             `json:"requestingName"`
	OccurrenceNumber string             `json:"occurrenceNumber"`
	Status           string             `json:"status"`
	Attachments      []recordAttachment `json:"attachments"`
}

type recordAttachment struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Data     string `json:"data"`
	Size     int64  `json:"size"`
}

// Send inserts the record and its attachments.
func (t *ObjectStoreTransport) Send(ctx context.Context, sub *Submission) error {
	rec := record{
		RequestType:      string(sub.RequestType),
		FormData:         sub.FormData,
		RequestingEmail:  sub.RequestingEmail,
		RequestingName:   sub.RequestingName,
		OccurrenceNumber: sub.OccurrenceNumber,
		Status:           sub.Status,
	}
	for _, a := range sub.Attachments {
		rec.Attachments = append(rec.Attachments, recordAttachment{
			Type:     a.Type,
			Filename: a.Filename,
			Data:     base64.StdEncoding.EncodeToString(a.Data),
			Size:     a.Size,
		})
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("marshal record: %w", err)}
	}

	prefix := fmt.Sprintf("%s/%s", sub.RequestType, sub.ID)
	if err := t.put(ctx, prefix+"/record.json", data, "application/json"); err != nil {
		return err
	}
	for _, a := range sub.Attachments {
		if err := t.put(ctx, prefix+"/"+a.Filename, a.Data, "application/octet-stream"); err != nil {
			return err
		}
	}
	return nil
}

func (t *ObjectStoreTransport) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := t.client.PutObject(ctx, t.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classifyObjectStoreErr(err)
	}
	return nil
}

// classifyObjectStoreErr maps a minio failure onto the transport taxonomy.
func classifyObjectStoreErr(err error) *Error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		if terr := classifyStatus(resp.StatusCode, nil); terr != nil {
			terr.Err = err
			return terr
		}
	}
	return classifyErr(err)
}
