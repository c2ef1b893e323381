package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radpipe.io/pack"
)

func makeTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "readme.txt"), []byte("hello"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "study1", "series1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "study1", "series1", "img.dcm"),
		make([]byte, 256), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "study1", "empty"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(src, "readme.txt"),
		filepath.Join(src, "study1", "link.txt")))
	return src
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestWriteBatch(t *testing.T) {
	src := makeTree(t)
	dest := t.TempDir()
	w := &Writer{SourceRoot: src, Dest: dest, CompressionLevel: 6}

	items := []pack.Item{
		{Path: filepath.Join(src, "study1"), Size: 256},
		{Path: filepath.Join(src, "readme.txt"), Size: 5},
	}
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	zpath, err := w.WriteBatch(1, items, ts)
	require.NoError(t, err)
	assert.Equal(t, "batch_001_20260829_120000.zip", filepath.Base(zpath))

	names := zipNames(t, zpath)
	assert.Contains(t, names, "study1/series1/img.dcm")
	assert.Contains(t, names, "readme.txt")
	// empty directories survive as directory entries
	assert.Contains(t, names, "study1/empty/")
	// symlinks are skipped
	for _, name := range names {
		assert.NotContains(t, name, "link.txt")
	}
}

func TestWriteBatchContent(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "data.txt"), []byte("payload"), 0644))
	dest := t.TempDir()
	w := &Writer{SourceRoot: src, Dest: dest, CompressionLevel: 9}

	zpath, err := w.WriteBatch(7, []pack.Item{{Path: filepath.Join(src, "data.txt"), Size: 7}},
		time.Now())
	require.NoError(t, err)

	r, err := zip.OpenReader(zpath)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)
	rc, err := r.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "payload", string(buf[:n]))
}

func TestWriteAll(t *testing.T) {
	src := makeTree(t)
	dest := t.TempDir()
	w := &Writer{SourceRoot: src, Dest: dest, CompressionLevel: 1}

	items, err := pack.ScanChildren(src)
	require.NoError(t, err)
	bins := pack.BestFitDecreasing(items, 100)

	created, err := w.WriteAll(bins, 2)
	require.NoError(t, err)
	require.Len(t, created, len(bins))
	for i, c := range created {
		assert.FileExists(t, c.Path)
		assert.Equal(t, bins[i].Size(), c.Payload)
	}
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512.00 B", HumanBytes(512))
	assert.Equal(t, "1.00 KB", HumanBytes(1024))
	assert.Equal(t, "2.50 MB", HumanBytes(2621440))
	assert.Equal(t, "1.00 GB", HumanBytes(1073741824))
	assert.Equal(t, "1.00 TB", HumanBytes(1099511627776))
}

func TestPlanString(t *testing.T) {
	bins := []pack.Bin{
		{Items: []pack.Item{{Path: "/data/huge", Size: 20 * pack.GB}}},
		{Items: []pack.Item{{Path: "/data/small", Size: pack.GB}}, Free: 9 * pack.GB},
	}
	plan := PlanString(bins, 10*pack.GB)
	assert.Contains(t, plan, "Batch 001")
	assert.Contains(t, plan, "contains oversize item")
	assert.Contains(t, plan, "huge")
	assert.Contains(t, plan, "Estimated number of zips: 2")
	assert.Equal(t, 1, strings.Count(plan, "oversize"))
}
