package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bbernstein/velobot/internal/models"
	"github.com/rs/zerolog/log"
)

// S3Client defines the interface for S3 operations we need
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

const snapshotKey = "stations.json"

// StationSnapshotRecord is the object body written to S3
type StationSnapshotRecord struct {
	Stations    []models.Station `json:"stations"`
	LastUpdated int64            `json:"lastUpdated"`
	TTL         int64            `json:"ttl"`
}

// S3StationSnapshotStore keeps the last refreshed station list in S3 so a
// restarted process has stations to match against before its first fetch.
type S3StationSnapshotStore struct {
	client     S3Client
	bucketName string
	ttl        time.Duration
	clock      clock
}

var _ models.StationSnapshotStore = (*S3StationSnapshotStore)(nil)

func NewS3StationSnapshotStore(client S3Client, bucketName string, ttl time.Duration) *S3StationSnapshotStore {
	return &S3StationSnapshotStore{
		client:     client,
		bucketName: bucketName,
		ttl:        ttl,
		clock:      realClock{},
	}
}

// GetStations returns the stored list, or nil when there is no object or it
// has expired
func (c *S3StationSnapshotStore) GetStations(ctx context.Context) ([]models.Station, error) {
	if c.bucketName == "" {
		return nil, fmt.Errorf("empty bucket name")
	}

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(snapshotKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting station snapshot: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing S3 object body")
		}
	}(result.Body)

	var record StationSnapshotRecord
	if err := json.NewDecoder(result.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding station snapshot: %w", err)
	}

	if c.clock.Now().Unix() > record.TTL {
		log.Debug().Int64("last_updated", record.LastUpdated).Msg("Station snapshot expired")
		return nil, nil
	}

	return record.Stations, nil
}

func (c *S3StationSnapshotStore) SaveStations(ctx context.Context, stations []models.Station) error {
	if c.bucketName == "" {
		return fmt.Errorf("empty bucket name")
	}

	now := c.clock.Now().Unix()
	record := StationSnapshotRecord{
		Stations:    stations,
		LastUpdated: now,
		TTL:         now + int64(c.ttl.Seconds()),
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(record); err != nil {
		return fmt.Errorf("encoding station snapshot: %w", err)
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(snapshotKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("saving station snapshot to S3: %w", err)
	}

	log.Debug().Int("station_count", len(stations)).Msg("Saved station snapshot to S3")
	return nil
}
