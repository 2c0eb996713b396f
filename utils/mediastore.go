// utils/mediastore.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var storeClient *s3.Client
var storeBucket string

// InitMediaStore configures the S3-compatible content store proof evidence
// is uploaded to. Optional: when PROOF_STORE_ENDPOINT is unset, uploads
// fall back to local disk.
func InitMediaStore() error {
	endpoint := os.Getenv("PROOF_STORE_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	accessKeyID := os.Getenv("PROOF_STORE_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("PROOF_STORE_ACCESS_KEY_SECRET")
	storeBucket = os.Getenv("PROOF_STORE_BUCKET")
	if storeBucket == "" {
		return fmt.Errorf("PROOF_STORE_BUCKET not set")
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return fmt.Errorf("failed to load content store config: %w", err)
	}

	storeClient = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return nil
}

// StoreProofMedia uploads a proof file and returns the opaque content key.
// The core never interprets the file bytes; only the key travels through
// the quest lifecycle.
func StoreProofMedia(fileHeader *multipart.FileHeader, key string) (string, error) {
	if storeClient == nil {
		if err := SaveFile(fileHeader, GetUploadPath(key)); err != nil {
			return "", err
		}
		return key, nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = storeClient.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(storeBucket),
		Key:         aws.String(key),
		Body:        buf,
		ContentType: aws.String(fileHeader.Header.Get("Content-Type")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to content store: %w", err)
	}
	return key, nil
}
