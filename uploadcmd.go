package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	core "radpipe.io/core"
	s3up "radpipe.io/s3up"
)

type UploadCommand struct {
	Help         bool   `short:"h" long:"help" description:"Show this help message"`
	Workers      int    `short:"w" long:"workers" description:"Number of parallel uploads" default:"8"`
	ACL          string `long:"acl" description:"Optional canned ACL like private or public-read"`
	StorageClass string `long:"storage-class" description:"Optional storage class like STANDARD_IA"`
	DryRun       bool   `long:"dry-run" description:"List files and keys without uploading"`
	Args         struct {
		LocalFolder string `positional-arg-name:"local_folder" description:"path to local folder to upload"`
		S3Path      string `positional-arg-name:"s3_path" description:"target like s3://bucket/prefix/"`
	} `positional-args:"true" required:"2"`
}

var uploadCommand UploadCommand

func (x *UploadCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	localRoot, err := filepath.Abs(x.Args.LocalFolder)
	if err != nil {
		return err
	}
	if info, serr := os.Stat(localRoot); serr != nil || !info.IsDir() {
		return errors.New("upload: local folder does not exist or is not a directory: " + localRoot)
	}
	target, err := s3up.ParseURI(x.Args.S3Path)
	if err != nil {
		return errors.New("upload: " + err.Error())
	}

	files, err := s3up.ListFiles(localRoot)
	if err != nil {
		return errors.New("upload: " + err.Error())
	}
	if len(files) == 0 {
		fmt.Println("No files found to upload. Exiting.")
		return nil
	}
	var total int64
	for _, f := range files {
		if info, serr := os.Stat(f); serr == nil {
			total += info.Size()
		}
	}

	if x.DryRun {
		fmt.Println("Dry run. Files that would be uploaded:")
		for _, f := range files {
			key, kerr := s3up.BuildKey(f, localRoot, target.Prefix)
			if kerr != nil {
				return kerr
			}
			fmt.Printf("%s  ->  s3://%s/%s\n", f, target.Bucket, key)
		}
		fmt.Printf("Total files: %d\n", len(files))
		fmt.Printf("Total bytes: %d\n", total)
		return nil
	}

	ctx := context.Background()
	uploader, err := s3up.New(ctx, x.Workers)
	if err != nil {
		return errors.New("upload: " + err.Error())
	}
	uploader.ACL = x.ACL
	uploader.StorageClass = x.StorageClass

	fmt.Printf("Uploading %d files from %s to s3://%s/%s\n",
		len(files), localRoot, target.Bucket, target.Prefix)
	fmt.Println("Starting uploads...")

	progress := s3up.NewProgress(total)
	uploaded, failures, err := uploader.UploadTree(ctx, localRoot, target, files, progress)
	// Finish the progress line
	fmt.Println()
	if err != nil {
		return errors.New("upload: " + err.Error())
	}

	fmt.Printf("Uploaded %d files.\n", len(uploaded))
	if len(failures) > 0 {
		fmt.Fprintf(os.Stderr, "%d uploads failed. Listing failures:\n", len(failures))
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "- s3://%s/%s  error: %v\n", target.Bucket, failure.Key, failure.Err)
		}
		return fmt.Errorf("upload: %d uploads failed", len(failures))
	}
	return nil
}

func init() {
	parser.AddCommand("upload",
		"Upload a folder to S3",
		"Upload all files in a local folder to an S3 URI like "+
			"s3://bucket/prefix, preserving relative paths under the prefix",
		&uploadCommand)
}
