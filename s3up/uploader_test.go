package s3up

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	target, err := ParseURI("s3://my-bucket/backups/projectX/")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", target.Bucket)
	assert.Equal(t, "backups/projectX/", target.Prefix)

	target, err = ParseURI("s3://my-bucket")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", target.Bucket)
	assert.Equal(t, "", target.Prefix)

	_, err = ParseURI("https://my-bucket/prefix")
	assert.Error(t, err)
	_, err = ParseURI("s3:///prefix-only")
	assert.Error(t, err)
}

func TestBuildKey(t *testing.T) {
	root := filepath.Join("/data", "zips")
	file := filepath.Join(root, "sub", "batch_001.zip")

	key, err := BuildKey(file, root, "backups/projectX/")
	require.NoError(t, err)
	assert.Equal(t, "backups/projectX/sub/batch_001.zip", key)

	// prefix without trailing slash gains one
	key, err = BuildKey(file, root, "backups")
	require.NoError(t, err)
	assert.Equal(t, "backups/sub/batch_001.zip", key)

	// empty prefix keeps the bare relative path
	key, err = BuildKey(file, root, "")
	require.NoError(t, err)
	assert.Equal(t, "sub/batch_001.zip", key)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("report.pdf"))
	assert.Equal(t, "", ContentType("IMG0001"))
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.zip"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "two.zip"), []byte("y"), 0644))

	files, err := ListFiles(root)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestProgress(t *testing.T) {
	p := NewProgress(0)
	// zero total must not divide by zero
	p.Add(10)
	assert.Equal(t, int64(10), p.seen.Load())
}
