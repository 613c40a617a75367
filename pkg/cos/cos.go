// Package cos stages documents in IBM Cloud Object Storage for text
// extraction jobs. COS speaks the S3 API, so the client is a path-style
// aws-sdk-go-v2 S3 client authenticated with HMAC credentials.
package cos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/blueberrycongee/wxai/pkg/types"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-south"

// ConnectionAssetType is the data reference type for COS connections.
const ConnectionAssetType = "connection_asset"

// ErrObjectNotFound is returned by Download for a missing key.
var ErrObjectNotFound = errors.New("cos: object not found")

// Config contains configuration for a COS client.
type Config struct {
	Endpoint        string // e.g. https://s3.us-south.cloud-object-storage.appdomain.cloud
	Region          string
	AccessKeyID     string // HMAC access key (optional, uses default credentials if empty)
	SecretAccessKey string // HMAC secret key (optional)
	PathPrefix      string // Prefix joined onto keys built with Key
	HTTPClient      *http.Client
}

// DefaultConfig returns configuration from the environment.
func DefaultConfig() Config {
	region := os.Getenv("COS_REGION")
	if region == "" {
		region = DefaultRegion
	}
	return Config{
		Endpoint:        os.Getenv("COS_ENDPOINT"),
		Region:          region,
		AccessKeyID:     os.Getenv("COS_HMAC_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("COS_HMAC_SECRET_ACCESS_KEY"),
		PathPrefix:      os.Getenv("COS_PATH_PREFIX"),
	}
}

// Client uploads and downloads objects.
type Client struct {
	config Config
	client *s3.Client
}

// New creates a COS client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://s3." + regionOrDefault(cfg.Region) + ".cloud-object-storage.appdomain.cloud"
	}
	cfg.Region = regionOrDefault(cfg.Region)

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cos: failed to load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Client{config: cfg, client: client}, nil
}

func regionOrDefault(region string) string {
	if region == "" {
		return DefaultRegion
	}
	return region
}

// Key joins name onto the configured path prefix.
func (c *Client) Key(name string) string {
	if c.config.PathPrefix == "" {
		return name
	}
	return path.Join(c.config.PathPrefix, name)
}

// Upload stores body under bucket/key. Non-seekable bodies are buffered so
// the request can be signed.
func (c *Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("cos: read body: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        rs,
		ContentType: aws.String(contentTypeFor(key)),
	})
	if err != nil {
		return fmt.Errorf("cos: upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Download returns the object stored under bucket/key.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("cos: download %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("cos: read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Delete removes bucket/key.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("cos: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Stage uploads a document and returns the reference a text extraction
// request points at.
func (c *Client) Stage(ctx context.Context, bucket, key, connectionID string, body io.Reader) (types.DataReference, error) {
	if err := c.Upload(ctx, bucket, key, body); err != nil {
		return types.DataReference{}, err
	}
	return Reference(bucket, key, connectionID), nil
}

// Reference builds a connection-asset data reference for bucket/key.
func Reference(bucket, key, connectionID string) types.DataReference {
	return types.DataReference{
		Type:       ConnectionAssetType,
		Connection: types.ConnectionRef{ID: connectionID},
		Location:   types.ObjectLocation{Bucket: bucket, FileName: key},
	}
}

func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".txt":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
