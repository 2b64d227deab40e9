package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Backend(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{objects: map[string][]byte{"distfiles/mirror/zlib-1.3.1.tar.xz": tarball}}
	b := &S3Backend{client: fake, bucket: "distfiles", prefix: "mirror"}

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, b.Fetch(context.Background(), Source{Package: "zlib", Filename: "zlib-1.3.1.tar.xz"}, dst))
	assert.Equal(t, []string{"mirror/z/zlib-1.3.1.tar.xz", "mirror/zlib-1.3.1.tar.xz"}, fake.keys)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, tarball, data)

	err = b.Fetch(context.Background(), Source{Package: "bzip2", Filename: "bzip2-1.0.8.tar.gz"}, dst)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewS3BackendNeedsBucket(t *testing.T) {
	t.Parallel()

	_, err := NewS3Backend(context.Background(), S3Config{})
	assert.Error(t, err)
}
