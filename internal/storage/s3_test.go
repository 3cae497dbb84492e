package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, io.EOF
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestAttachmentStoreRoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := NewAttachmentStoreWithClient(fake, "emailmind-attachments")

	key, err := store.Save(context.Background(), "u1", "e1", "Q3 report.pdf", "application/pdf", []byte("pdf-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "attachments/u1/e1/"))
	assert.True(t, strings.HasSuffix(key, "-Q3_report.pdf"))
	assert.Equal(t, "application/pdf", fake.types[key])

	data, err := store.Open(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)

	require.NoError(t, store.Delete(context.Background(), key))
	assert.Empty(t, fake.objects)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", sanitizeFilename("../../report.pdf"))
	assert.Equal(t, "my_file_v2_.pdf", sanitizeFilename("my file#v2?.pdf"))
	assert.Equal(t, "attachment", sanitizeFilename(""))
}

func TestSaveDefaultsContentType(t *testing.T) {
	fake := newFakeS3()
	store := NewAttachmentStoreWithClient(fake, "b")

	key, err := store.Save(context.Background(), "u1", "e1", "blob", "", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", fake.types[key])
}
