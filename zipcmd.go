package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	archive "radpipe.io/archive"
	core "radpipe.io/core"
	pack "radpipe.io/pack"
)

type ZipCommand struct {
	Help             bool    `short:"h" long:"help" description:"Show this help message"`
	BatchSizeGb      float64 `long:"batch-size-gb" description:"Maximum size per batch in GB" default:"10"`
	CompressionLevel int     `long:"compression-level" description:"Deflate compression level 0 to 9" default:"6"`
	Jobs             int     `short:"j" long:"jobs" description:"Number of archives to write concurrently" default:"1"`
	DryRun           bool    `long:"dry-run" description:"Plan and print batches without creating zip files"`
	Args             struct {
		Source      string `positional-arg-name:"source" description:"folder whose children are grouped into batches"`
		Destination string `positional-arg-name:"destination" description:"folder where zips are written"`
	} `positional-args:"true" required:"2"`
}

var zipCommand ZipCommand

func (x *ZipCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	if x.CompressionLevel < 0 || x.CompressionLevel > 9 {
		return errors.New("zip: compression level must be 0 to 9")
	}
	source, err := filepath.Abs(x.Args.Source)
	if err != nil {
		return err
	}
	dest, err := filepath.Abs(x.Args.Destination)
	if err != nil {
		return err
	}
	if info, serr := os.Stat(source); serr != nil || !info.IsDir() {
		return errors.New("zip: source does not exist or is not a directory: " + source)
	}

	capacity := int64(x.BatchSizeGb * float64(pack.GB))
	if capacity < 1 {
		return errors.New("zip: batch size must be positive")
	}

	fmt.Printf("Scanning sizes under: %s\n", source)
	items, err := pack.ScanChildren(source)
	if err != nil {
		return errors.New("zip: " + err.Error())
	}
	if len(items) == 0 {
		fmt.Println("No children found in source. Nothing to do.")
		return nil
	}
	var total int64
	for _, item := range items {
		total += item.Size
		fmt.Printf(" - %s: %s\n", filepath.Base(item.Path), archive.HumanBytes(item.Size))
	}
	fmt.Printf("Total size of all children: %s\n", archive.HumanBytes(total))
	fmt.Printf("Batch capacity: %.2f GB\n", x.BatchSizeGb)

	bins := pack.BestFitDecreasing(items, capacity)
	fmt.Println()
	fmt.Print(archive.PlanString(bins, capacity))

	if x.DryRun {
		fmt.Println()
		fmt.Println("Dry run was requested. No archives were created.")
		return nil
	}

	fmt.Println()
	fmt.Printf("Writing zips to: %s\n", dest)
	writer := &archive.Writer{
		SourceRoot:       source,
		Dest:             dest,
		CompressionLevel: x.CompressionLevel,
	}
	created, err := writer.WriteAll(bins, x.Jobs)
	if err != nil {
		return errors.New("zip: " + err.Error())
	}
	fmt.Println()
	fmt.Println("Done.")
	fmt.Println("Created archives:")
	for _, c := range created {
		fmt.Printf(" - %s - approx payload size %s\n", c.Path, archive.HumanBytes(c.Payload))
	}
	return nil
}

func init() {
	parser.AddCommand("zip",
		"Zip a folder into size-capped batches",
		"Group immediate children of a folder into zip batches no larger "+
			"than a target size using best fit decreasing bin packing",
		&zipCommand)
}
