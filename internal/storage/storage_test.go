package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupKey(t *testing.T) {
	cases := map[string]string{
		"upfile/1234567G/image.jpg":            "upfile/1234567G/.backup/image.jpg",
		"upfile/1234567G/20220824190333_1.jpg": "upfile/1234567G/.backup/20220824190333_1.jpg",
		"upfile/ABC123/subdir/photo.png":       "upfile/ABC123/subdir/.backup/photo.png",
		"photo.png":                            ".backup/photo.png",
	}
	for in, want := range cases {
		assert.Equal(t, want, BackupKey(in), in)
	}
}

func TestLocalStore_BackupRestore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewLocalStore(root)

	key := "upfile/1234567G/a.jpg"
	require.NoError(t, s.Put(ctx, key, []byte("original")))

	dst, err := Backup(ctx, s, key)
	require.NoError(t, err)
	assert.Equal(t, "upfile/1234567G/.backup/a.jpg", dst)
	_, err = os.Stat(filepath.Join(root, "upfile", "1234567G", ".backup", "a.jpg"))
	require.NoError(t, err)

	// 覆盖后再次备份，备份仍是最初的原图
	require.NoError(t, s.Put(ctx, key, []byte("masked")))
	_, err = Backup(ctx, s, key)
	require.NoError(t, err)
	backup, err := s.Get(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, "original", string(backup))

	require.NoError(t, Restore(ctx, s, key))
	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestLocalStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	_, err := s.Get(ctx, "missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "missing.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.Put(ctx, "../escape.jpg", nil))
	assert.ErrorIs(t, Restore(ctx, s, "missing.jpg"), ErrNotFound)
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = data
	f.types[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	s := NewS3Store(client, "photos", "/dealer/")

	require.NoError(t, s.Put(ctx, "upfile/X/a.jpg", []byte("jpeg")))
	assert.Contains(t, client.objects, "photos/dealer/upfile/X/a.jpg")
	assert.Equal(t, "image/jpeg", client.types["photos/dealer/upfile/X/a.jpg"])

	_, err := Backup(ctx, s, "upfile/X/a.jpg")
	require.NoError(t, err)
	ok, err := s.Exists(ctx, "upfile/X/.backup/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Get(ctx, "upfile/X/b.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = s.Exists(ctx, "upfile/X/b.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}
