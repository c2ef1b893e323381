// Package pack plans archive batches: it sizes the immediate children of a
// source directory and groups them with Best Fit Decreasing bin packing so
// each batch stays under a byte capacity.
package pack

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const GB = int64(1024 * 1024 * 1024)

type Item struct {
	Path string
	Size int64
}

type Bin struct {
	Items []Item
	Free  int64
}

func (b *Bin) Size() int64 {
	var total int64
	for _, item := range b.Items {
		total += item.Size
	}
	return total
}

// Oversize reports whether the bin holds an item larger than capacity.
func (b *Bin) Oversize(capacity int64) bool {
	for _, item := range b.Items {
		if item.Size > capacity {
			return true
		}
	}
	return false
}

// WalkSize computes the total size of a file or directory path.
// Symlinked files and directories are skipped; a broken symlink counts as 0.
func WalkSize(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		resolved, rerr := filepath.EvalSymlinks(path)
		if rerr != nil {
			return 0, nil
		}
		path = resolved
		if info, err = os.Lstat(path); err != nil {
			return 0, nil
		}
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.Walk(path, func(p string, fi os.FileInfo, werr error) error {
		if werr != nil {
			// File may have disappeared
			return nil
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if fi.Mode().IsRegular() {
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

// ListChildren lists immediate children of source, sorted by lowercased name.
func ListChildren(source string) ([]string, error) {
	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, err
	}
	children := make([]string, 0, len(entries))
	for _, entry := range entries {
		children = append(children, filepath.Join(source, entry.Name()))
	}
	sort.Slice(children, func(i, j int) bool {
		return strings.ToLower(filepath.Base(children[i])) <
			strings.ToLower(filepath.Base(children[j]))
	})
	return children, nil
}

// BestFitDecreasing packs items into bins of the given capacity. Items are
// placed largest first into the bin leaving the least free space after
// placement. Items larger than capacity get a bin of their own.
func BestFitDecreasing(items []Item, capacity int64) []Bin {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size > sorted[j].Size
	})

	var bins []Bin
	for _, item := range sorted {
		if item.Size > capacity {
			bins = append(bins, Bin{Items: []Item{item}, Free: 0})
			continue
		}
		bestIdx := -1
		var bestAfter int64
		for i := range bins {
			if item.Size <= bins[i].Free {
				after := bins[i].Free - item.Size
				if bestIdx == -1 || after < bestAfter {
					bestAfter = after
					bestIdx = i
				}
			}
		}
		if bestIdx == -1 {
			bins = append(bins, Bin{Items: []Item{item}, Free: capacity - item.Size})
		} else {
			bins[bestIdx].Items = append(bins[bestIdx].Items, item)
			bins[bestIdx].Free -= item.Size
		}
	}
	return bins
}

// ScanChildren sizes every immediate child of source into pack items.
func ScanChildren(source string) ([]Item, error) {
	children, err := ListChildren(source)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(children))
	for _, child := range children {
		size, serr := WalkSize(child)
		if serr != nil {
			return nil, serr
		}
		items = append(items, Item{Path: child, Size: size})
	}
	return items, nil
}
