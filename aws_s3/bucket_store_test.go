package aws_s3

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/profiles"
)

func TestBucketName(t *testing.T) {
	assert.Equal(t, "game-playerdata", BucketName("game-", "PlayerData"))
	assert.Equal(t, "playerdata", BucketName("", "PlayerData"))
}

func TestLargeObjectThreshold(t *testing.T) {
	assert.False(t, isLargeObject(largeObjectMinSize))
	assert.True(t, isLargeObject(largeObjectMinSize+1))
}

func TestNewBlobStoreNeedsClient(t *testing.T) {
	_, err := NewBlobStore(nil, "p-", "us-east-1")
	assert.Error(t, err)
}

// Runs against a MinIO server, e.g. docker run -p 9000:9000 minio/minio server /data.
func TestBucketStore(t *testing.T) {
	if os.Getenv("PROFILES_S3_TEST") != "1" {
		t.Skip("skipping S3 integration test; set PROFILES_S3_TEST=1 to run")
	}
	client := Connect(Config{
		HostEndpointUrl: "http://127.0.0.1:9000",
		Region:          "us-east-1",
		Username:        "minioadmin",
		Password:        "minioadmin",
		UsePathStyle:    true,
	})
	bs, err := NewBlobStore(client, "profiles-test-", "us-east-1")
	require.NoError(t, err)

	ctx := context.Background()
	key := profiles.NewUUID().String()
	_, found, err := bs.Get(ctx, "PlayerData", key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, bs.Put(ctx, "PlayerData", key, []byte(`{"coins":1}`)))
	ba, found, err := bs.Get(ctx, "PlayerData", key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"coins":1}`, string(ba))

	require.NoError(t, bs.Remove(ctx, "PlayerData", key))
	_, found, err = bs.Get(ctx, "PlayerData", key)
	require.NoError(t, err)
	assert.False(t, found)
}
