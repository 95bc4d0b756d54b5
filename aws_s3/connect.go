// Package aws_s3 provides a BlobStore keeping profile envelopes in S3 (or an S3 compatible
// server such as MinIO), one bucket per store.
package aws_s3

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config addresses an S3 endpoint with static credentials.
type Config struct {
	// "http://127.0.0.1:9000"
	HostEndpointUrl string
	// "us-east-1"
	Region   string
	Username string
	Password string
	// UsePathStyle addresses buckets as <endpoint>/<bucket>, as MinIO requires.
	UsePathStyle bool
}

// Connect returns an S3 client for config's endpoint.
func Connect(config Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: config.Region}, func(o *s3.Options) {
		if config.HostEndpointUrl != "" {
			o.BaseEndpoint = aws.String(config.HostEndpointUrl)
		}
		o.Credentials = credentials.NewStaticCredentialsProvider(config.Username, config.Password, "")
		o.UsePathStyle = config.UsePathStyle
	})
}
