// Package documents issues presigned S3 upload URLs for transaction
// documents. The escrow service only records the resulting URL.
package documents

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/mbd888/homeescrow/internal/idgen"
)

var ErrInvalidFileName = errors.New("invalid document file name")

// DefaultExpiry is how long an upload URL stays valid.
const DefaultExpiry = 15 * time.Minute

// Upload describes a presigned upload slot.
type Upload struct {
	UploadURL string    `json:"uploadUrl"`
	FileURL   string    `json:"fileUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Presigner hands out upload slots scoped to a transaction.
type Presigner interface {
	PresignUpload(ctx context.Context, transactionID, fileName, contentType string) (*Upload, error)
}

// S3Config configures the S3 presigner.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Expiry          time.Duration
}

// S3Presigner presigns PutObject requests.
type S3Presigner struct {
	client *s3.S3
	bucket string
	expiry time.Duration
}

// NewS3Presigner builds a presigner. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
func NewS3Presigner(cfg S3Config) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("documents: bucket is required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("documents: aws session: %w", err)
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &S3Presigner{client: s3.New(sess), bucket: cfg.Bucket, expiry: expiry}, nil
}

func (p *S3Presigner) PresignUpload(ctx context.Context, transactionID, fileName, contentType string) (*Upload, error) {
	key, err := ObjectKey(transactionID, fileName)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, _ := p.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	req.SetContext(ctx)

	uploadURL, err := req.Presign(p.expiry)
	if err != nil {
		return nil, fmt.Errorf("documents: presign: %w", err)
	}

	fileURL := uploadURL
	if i := strings.IndexByte(fileURL, '?'); i >= 0 {
		fileURL = fileURL[:i]
	}
	return &Upload{
		UploadURL: uploadURL,
		FileURL:   fileURL,
		Key:       key,
		ExpiresAt: time.Now().Add(p.expiry),
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds escrow/<transactionID>/<random>-<sanitized name>.
func ObjectKey(transactionID, fileName string) (string, error) {
	base := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" || transactionID == "" {
		return "", ErrInvalidFileName
	}
	if len(base) > 128 {
		base = base[len(base)-128:]
	}
	return fmt.Sprintf("escrow/%s/%s-%s", transactionID, idgen.Hex(8), base), nil
}

var _ Presigner = (*S3Presigner)(nil)
