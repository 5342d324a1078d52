package argparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChecksums(t *testing.T) {
	type testCase struct {
		checksumsStr  string
		expectedNames []string
		expectedErr   bool
	}
	testCases := []testCase{
		{
			checksumsStr:  "md5,sha1,sha256,sha512",
			expectedNames: []string{"md5", "sha1", "sha256", "sha512"},
			expectedErr:   false,
		},
		{
			checksumsStr:  "sha256",
			expectedNames: []string{"sha256"},
			expectedErr:   false,
		},
		{
			checksumsStr:  " md5 , sha1 ",
			expectedNames: []string{"md5", "sha1"},
			expectedErr:   false,
		},
		{
			checksumsStr: "md5,whirlpool",
			expectedErr:  true,
		},
		{
			checksumsStr: "",
			expectedErr:  true,
		},
	}

	for _, tc := range testCases {
		request, err := ParseChecksums(tc.checksumsStr)
		if tc.expectedErr {
			assert.Errorf(t, err, "checksumsStr: %s", tc.checksumsStr)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tc.expectedNames, request.Names())
	}
}

func TestParseS3URI(t *testing.T) {
	type testCase struct {
		uri            string
		expectedBucket string
		expectedPrefix string
		expectedErr    bool
	}
	testCases := []testCase{
		{
			uri:            "s3://my-bucket/some/prefix",
			expectedBucket: "my-bucket",
			expectedPrefix: "some/prefix",
			expectedErr:    false,
		},
		{
			uri:            "s3://my-bucket",
			expectedBucket: "my-bucket",
			expectedPrefix: "",
			expectedErr:    false,
		},
		{
			uri:            "s3://my-bucket/",
			expectedBucket: "my-bucket",
			expectedPrefix: "",
			expectedErr:    false,
		},
		{
			uri:         "http://my-bucket/key",
			expectedErr: true,
		},
		{
			uri:         "s3://",
			expectedErr: true,
		},
	}

	for _, tc := range testCases {
		bucket, prefix, err := ParseS3URI(tc.uri)
		if tc.expectedErr {
			assert.Errorf(t, err, "uri: %s", tc.uri)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tc.expectedBucket, bucket)
		assert.Equal(t, tc.expectedPrefix, prefix)
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "my-bucket_some_prefix", Slug("s3://my-bucket/some/prefix"))
	assert.Equal(t, "my-bucket", Slug("s3://my-bucket"))
}
