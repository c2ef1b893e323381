package main

import (
	"errors"
	"fmt"

	core "radpipe.io/core"
	deid "radpipe.io/deid"
)

type DeidCommand struct {
	Help   bool   `short:"h" long:"help" description:"Show this help message"`
	Config string `short:"c" long:"config" description:"de-identification YAML config" default:"de_id_config.yaml"`
}

var deidCommand DeidCommand

func (x *DeidCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	config, err := deid.LoadConfig(x.Config)
	if err != nil {
		return err
	}
	accessions, err := deid.LoadAccessionMap(config.ManifestPath)
	if err != nil {
		return err
	}
	policy := deid.NewPolicy(config.ExtraKeepTags)
	processor := deid.NewProcessor(config, policy, accessions)

	processed, skipped, failed, err := processor.Run()
	if err != nil {
		return errors.New("deid: " + err.Error())
	}

	manifestOut := config.CsvOutputManifest
	if len(manifestOut) == 0 {
		manifestOut = "deid_manifest.csv"
	}
	if err := deid.WriteManifest(manifestOut, processor.Records); err != nil {
		return err
	}
	fmt.Printf("Complete. Processed %d, skipped %d, failed %d. Manifest written to: %s\n",
		processed, skipped, failed, manifestOut)
	if failed > 0 {
		return fmt.Errorf("deid: %d files failed", failed)
	}
	return nil
}

func init() {
	parser.AddCommand("deid",
		"De-identify a DICOM tree",
		"Walk a DICOM input directory, strip identifying metadata per the "+
			"tag policy, remap UIDs, and write the de-identified copies plus "+
			"an output manifest",
		&deidCommand)
}
