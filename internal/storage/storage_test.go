package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ignite/optin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	b, err := New(context.Background(), config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, b)

	b, err = New(context.Background(), config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	_, err = New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}

func TestLocal_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Get(ctx, "suppression/suppression.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.Put(ctx, "suppression/suppression.txt", []byte("a@x.io\n"), "text/plain"))
	require.NoError(t, l.Put(ctx, "suppression/suppression.txt", []byte("a@x.io\nb@x.io\n"), "text/plain"))

	data, err := l.Get(ctx, "suppression/suppression.txt")
	require.NoError(t, err)
	assert.Equal(t, "a@x.io\nb@x.io\n", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "suppression"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocal_KeysStayInsideRoot(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)

	require.NoError(t, l.Put(context.Background(), "../../escape.txt", []byte("x"), ""))
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	assert.NoError(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3_PutGetAndNotFound(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := &S3{client: fake, bucket: "optin"}
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "k", []byte("v"), ""))
	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func TestListFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote@example.com\n"))
	}))
	defer srv.Close()

	mem := NewMemory()
	require.NoError(t, mem.Put(context.Background(), "imports/list.txt", []byte("local@example.com\n"), ""))
	fake := &fakeS3{objects: map[string][]byte{"other/lists/a.txt": []byte("s3@example.com\n")}}

	f := NewListFetcher(mem, &S3{client: fake, bucket: "optin"}, nil)
	ctx := context.Background()

	data, err := f.Fetch(ctx, srv.URL+"/list.txt")
	require.NoError(t, err)
	assert.Equal(t, "remote@example.com\n", string(data))

	data, err = f.Fetch(ctx, "s3://other/lists/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "s3@example.com\n", string(data))

	data, err = f.Fetch(ctx, "imports/list.txt")
	require.NoError(t, err)
	assert.Equal(t, "local@example.com\n", string(data))

	_, err = f.Fetch(ctx, "s3://bucket-only")
	assert.Error(t, err)
	_, err = f.Fetch(ctx, "   ")
	assert.Error(t, err)
}
