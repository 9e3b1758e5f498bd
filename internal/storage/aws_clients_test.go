package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDynamoClient(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{
			name:     "local development setup",
			endpoint: "http://localhost:8000",
		},
		{
			name:     "production setup",
			endpoint: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DYNAMODB_ENDPOINT", tt.endpoint)
			t.Setenv("AWS_REGION", "eu-central-1")

			client, err := NewDynamoClient(context.Background())
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}
}

func TestNewS3Client(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{
			name:     "local development setup",
			endpoint: "http://localhost:9000",
		},
		{
			name:     "production setup",
			endpoint: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("S3_ENDPOINT", tt.endpoint)
			t.Setenv("AWS_REGION", "eu-central-1")

			client, err := NewS3Client(context.Background())
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}
}
