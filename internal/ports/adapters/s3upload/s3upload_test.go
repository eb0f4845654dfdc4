package s3upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	local := filepath.Join(t.TempDir(), "train.BEST")
	require.NoError(t, os.WriteFile(local, []byte("wav_filename,transcript\n"), 0o644))

	fp := &fakePutter{}
	a := newWithClient(fp, "datasets", "/curation/")

	uri, err := a.Upload(context.Background(), "run-1", local)
	require.NoError(t, err)
	assert.Equal(t, "s3://datasets/curation/run-1/train.BEST", uri)
	assert.Equal(t, "datasets", fp.bucket)
	assert.Equal(t, "curation/run-1/train.BEST", fp.key)
	assert.Equal(t, "wav_filename,transcript\n", string(fp.body))
}

func TestUpload_Errors(t *testing.T) {
	a := newWithClient(&fakePutter{err: errors.New("denied")}, "b", "")

	_, err := a.Upload(context.Background(), "r", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	local := filepath.Join(t.TempDir(), "x.TOO_LONG")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))
	_, err = a.Upload(context.Background(), "r", local)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}
