package processor

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trozz/get-s3-checksums/internal/checksum"
	"github.com/Trozz/get-s3-checksums/internal/s3client"
)

type putTagsCall struct {
	tags      map[string]string
	versionID string
}

type fakeStore struct {
	mu sync.Mutex

	tags      map[string]string
	body      []byte
	bodyErr   error
	versionID string

	getTagsErr error
	headErr    error
	getErr     error
	putTagsErr error

	getCalls  int
	headCalls int
	putCalls  []putTagsCall
}

func (f *fakeStore) GetTags(ctx context.Context, region, bucket, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getTagsErr != nil {
		return nil, f.getTagsErr
	}
	tags := make(map[string]string, len(f.tags))
	for k, v := range f.tags {
		tags[k] = v
	}
	return tags, nil
}

func (f *fakeStore) PutTags(ctx context.Context, region, bucket, key string, tags map[string]string, versionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putTagsErr != nil {
		return f.putTagsErr
	}
	f.putCalls = append(f.putCalls, putTagsCall{tags: tags, versionID: versionID})
	f.tags = tags
	return nil
}

func (f *fakeStore) info() s3client.ObjectInfo {
	return s3client.ObjectInfo{
		Size:         int64(len(f.body)),
		ETag:         `"fake-etag"`,
		VersionID:    f.versionID,
		LastModified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) GetObject(ctx context.Context, region, bucket, key string) (*s3client.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.getCalls++
	var body io.Reader = bytes.NewReader(f.body)
	if f.bodyErr != nil {
		body = io.MultiReader(bytes.NewReader(f.body), &failingReader{err: f.bodyErr})
	}
	return &s3client.Object{
		ObjectInfo: f.info(),
		Body:       io.NopCloser(body),
	}, nil
}

func (f *fakeStore) HeadObject(ctx context.Context, region, bucket, key string) (*s3client.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	f.headCalls++
	info := f.info()
	return &info, nil
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(p []byte) (int, error) {
	return 0, r.err
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

var testDesc = s3client.ObjectDescriptor{Bucket: "b1", Key: "k1", Region: "us-east-1"}

func mustRequest(t *testing.T, names ...string) checksum.Request {
	t.Helper()
	request, err := checksum.NewRequest(names)
	require.NoError(t, err)
	return request
}

func TestProcessSkipsWhenAllTagsPresent(t *testing.T) {
	store := &fakeStore{
		body: []byte("never read"),
		tags: map[string]string{
			"md5":  "tagged-md5",
			"sha1": "tagged-sha1",
		},
	}
	p := New(store, mustRequest(t, "md5", "sha1"), false)

	result, err := p.Process(context.Background(), testDesc)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Skipped)
	assert.Equal(t, "tagged-md5", result.Checksums["md5"])
	assert.Equal(t, "tagged-sha1", result.Checksums["sha1"])
	assert.Equal(t, int64(len(store.body)), result.Size)
	assert.Equal(t, 0, store.getCalls, "skip must not open the body stream")
	assert.Equal(t, 1, store.headCalls)
	assert.Empty(t, store.putCalls, "skip must not rewrite tags")
}

func TestProcessComputesWhenTagsIncomplete(t *testing.T) {
	body := []byte("some object content")
	store := &fakeStore{
		body: body,
		tags: map[string]string{"md5": "stale"},
	}
	p := New(store, mustRequest(t, "md5", "sha1"), false)

	result, err := p.Process(context.Background(), testDesc)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Skipped)
	assert.Equal(t, md5Hex(body), result.Checksums["md5"])
	assert.Equal(t, sha1Hex(body), result.Checksums["sha1"])
	assert.Equal(t, 1, store.getCalls)
	require.Len(t, store.putCalls, 1)
	assert.Equal(t, result.Checksums, store.putCalls[0].tags)
	assert.Empty(t, store.putCalls[0].versionID)
}

func TestProcessForceRecomputesAndOverwritesTags(t *testing.T) {
	body := []byte("fresh content")
	store := &fakeStore{
		body: body,
		tags: map[string]string{"md5": "old-value"},
	}
	p := New(store, mustRequest(t, "md5"), true)

	result, err := p.Process(context.Background(), testDesc)
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 1, store.getCalls)
	assert.Equal(t, md5Hex(body), store.tags["md5"])
}

func TestProcessFallsThroughWhenHeadFails(t *testing.T) {
	body := []byte("content")
	store := &fakeStore{
		body:    body,
		tags:    map[string]string{"md5": "tagged"},
		headErr: errors.New("head failed"),
	}
	p := New(store, mustRequest(t, "md5"), false)

	result, err := p.Process(context.Background(), testDesc)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Skipped)
	assert.Equal(t, md5Hex(body), result.Checksums["md5"])
	assert.Equal(t, 1, store.getCalls)
}

func TestProcessTreatsTagFetchErrorAsMiss(t *testing.T) {
	body := []byte("content")
	store := &fakeStore{
		body:       body,
		getTagsErr: errors.New("tagging unavailable"),
	}
	p := New(store, mustRequest(t, "md5"), false)

	result, err := p.Process(context.Background(), testDesc)
	require.NoError(t, err)
	assert.Equal(t, md5Hex(body), result.Checksums["md5"])
}

func TestProcessDropsObjectOnFetchError(t *testing.T) {
	store := &fakeStore{
		getErr: errors.New("access denied"),
	}
	p := New(store, mustRequest(t, "md5"), false)

	result, err := p.Process(context.Background(), testDesc)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestProcessDropsObjectOnMidStreamError(t *testing.T) {
	store := &fakeStore{
		body:    []byte("partial"),
		bodyErr: errors.New("connection reset"),
	}
	p := New(store, mustRequest(t, "md5"), false)

	result, err := p.Process(context.Background(), testDesc)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestProcessTagWriteBackFailureIsNonFatal(t *testing.T) {
	body := []byte("content")
	store := &fakeStore{
		body:       body,
		putTagsErr: errors.New("tagging denied"),
	}
	p := New(store, mustRequest(t, "md5"), false)

	result, err := p.Process(context.Background(), testDesc)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, md5Hex(body), result.Checksums["md5"])
}

func TestProcessTagsSpecificVersionWhenVersioned(t *testing.T) {
	store := &fakeStore{
		body:      []byte("versioned content"),
		versionID: "v123",
	}
	p := New(store, mustRequest(t, "md5"), false)

	result, err := p.Process(context.Background(), testDesc)
	require.NoError(t, err)
	assert.Equal(t, "v123", result.VersionID)

	require.Len(t, store.putCalls, 2)
	assert.Empty(t, store.putCalls[0].versionID)
	assert.Equal(t, "v123", store.putCalls[1].versionID)
	assert.Equal(t, store.putCalls[0].tags, store.putCalls[1].tags)
}

func TestResultRecordColumnsFollowRequestOrder(t *testing.T) {
	request := mustRequest(t, "sha1", "md5")
	result := &ObjectResult{
		Bucket:       "b1",
		Key:          "k1",
		Size:         42,
		ETag:         `"etag"`,
		VersionID:    "v1",
		LastModified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Checksums: map[string]string{
			"md5":  "m",
			"sha1": "s",
		},
	}
	assert.Equal(t,
		[]string{"b1", "k1", "42", `"etag"`, "v1", "2024-05-01T12:00:00Z", "s", "m"},
		result.Record(request))
}
