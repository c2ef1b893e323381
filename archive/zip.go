// Package archive writes the planned batches to zip files.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	kflate "github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"

	"radpipe.io/pack"
)

// HumanBytes formats a byte count the way the plan listing prints sizes.
func HumanBytes(n int64) string {
	val := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if val < 1024 {
			return fmt.Sprintf("%.2f %s", val, unit)
		}
		val /= 1024
	}
	return fmt.Sprintf("%.2f TB", val)
}

// BatchName builds the archive filename for a batch index.
func BatchName(index int, ts time.Time) string {
	return fmt.Sprintf("batch_%03d_%s.zip", index, ts.Format("20060102_150405"))
}

// Writer zips planned batches under a destination directory.
type Writer struct {
	SourceRoot string
	Dest       string
	// Deflate level 0-9
	CompressionLevel int
}

func (w *Writer) registerDeflate(zw *zip.Writer) {
	level := w.CompressionLevel
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(out, level)
	})
}

// WriteBatch creates one archive for the batch items. Items are top level
// children of SourceRoot and keep their relative paths as entry names.
// Empty directories are preserved, symlinks skipped.
func (w *Writer) WriteBatch(index int, items []pack.Item, ts time.Time) (string, error) {
	if err := os.MkdirAll(w.Dest, 0755); err != nil {
		return "", err
	}
	zpath := filepath.Join(w.Dest, BatchName(index, ts))
	f, err := os.Create(zpath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w.registerDeflate(zw)

	for _, item := range items {
		if err := w.addPath(zw, item.Path); err != nil {
			zw.Close()
			return "", fmt.Errorf("archive: %s: %w", item.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return zpath, f.Sync()
}

func (w *Writer) addPath(zw *zip.Writer, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.Mode().IsRegular() {
		return w.addFile(zw, path, filepath.Base(path))
	}
	if !info.IsDir() {
		// top level symlink or special file
		return nil
	}
	return filepath.Walk(path, func(p string, fi os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		rel, rerr := filepath.Rel(w.SourceRoot, p)
		if rerr != nil {
			return rerr
		}
		arcname := filepath.ToSlash(rel)
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if fi.IsDir() {
			empty, eerr := dirEmpty(p)
			if eerr != nil {
				return eerr
			}
			// write directory entries so empty dirs survive extraction
			if empty {
				_, herr := zw.Create(arcname + "/")
				return herr
			}
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		return w.addFile(zw, p, arcname)
	})
}

func (w *Writer) addFile(zw *zip.Writer, path, arcname string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = arcname
	hdr.Method = zip.Deflate
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

func dirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// Created pairs an archive path with the approximate payload it holds.
type Created struct {
	Path    string
	Payload int64
}

// WriteAll zips every bin, at most jobs archives in flight at once.
// Results keep the bin order.
func (w *Writer) WriteAll(bins []pack.Bin, jobs int) ([]Created, error) {
	if jobs < 1 {
		jobs = 1
	}
	created := make([]Created, len(bins))
	ts := time.Now()

	var g errgroup.Group
	g.SetLimit(jobs)
	for i := range bins {
		i := i
		g.Go(func() error {
			zpath, err := w.WriteBatch(i+1, bins[i].Items, ts)
			if err != nil {
				return err
			}
			created[i] = Created{Path: zpath, Payload: bins[i].Size()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return created, nil
}

// PlanString renders the dry-run batch listing.
func PlanString(bins []pack.Bin, capacity int64) string {
	var b strings.Builder
	b.WriteString("Planned batches:\n")
	for i, bin := range bins {
		fmt.Fprintf(&b, " Batch %03d - %s", i+1, HumanBytes(bin.Size()))
		if bin.Oversize(capacity) {
			b.WriteString(" - contains oversize item")
		}
		b.WriteString("\n")
		for _, item := range bin.Items {
			fmt.Fprintf(&b, "    %s - %s\n", filepath.Base(item.Path), HumanBytes(item.Size))
		}
	}
	fmt.Fprintf(&b, "Estimated number of zips: %d\n", len(bins))
	return b.String()
}
