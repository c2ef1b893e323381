package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	core "radpipe.io/core"
	deid "radpipe.io/deid"
	logger "radpipe.io/logger"
	slurm "radpipe.io/slurm"
)

// Stage presets for the three pipeline jobs. The de-identification stage
// runs on the GPU partition so the downstream pixel redaction tool can
// share the allocation; archive and upload stages are CPU only.
type stagePreset struct {
	Name        string
	CpusPerTask int
	Mem         string
	Gpu         bool
	Gres        []string
}

var stagePresets = map[string]stagePreset{
	"deid":   {Name: "local_deid", CpusPerTask: 16, Mem: "64G", Gpu: true, Gres: []string{"gpu:1"}},
	"zip":    {Name: "batch_zip", CpusPerTask: 8, Mem: "32G"},
	"upload": {Name: "upload_s3", CpusPerTask: 8, Mem: "16G"},
}

// stageJob builds the batch job for one stage: preset resources, fixed log
// file paths under the site log dir, one command line.
func stageJob(stage string, site core.Site, command string) (*slurm.BatchJob, error) {
	preset, ok := stagePresets[stage]
	if !ok {
		return nil, errors.New("pipeline: unknown stage: " + stage)
	}
	partition := site.Partition
	if preset.Gpu {
		partition = site.GpuPartition
	}
	logDir := site.LogDir
	if len(logDir) == 0 {
		logDir = "."
	}
	return &slurm.BatchJob{
		Name:        preset.Name,
		Partition:   partition,
		Ntasks:      1,
		CpusPerTask: preset.CpusPerTask,
		Mem:         preset.Mem,
		Gres:        preset.Gres,
		Output:      filepath.Join(logDir, preset.Name+"_%j.out"),
		ErrorFile:   filepath.Join(logDir, preset.Name+"_%j.err"),
		Command:     command,
	}, nil
}

type PipelineCommand struct {
	Help        bool    `short:"h" long:"help" description:"Show this help message"`
	DeidConfig  string  `long:"deid-config" description:"de-identification YAML config" default:"de_id_config.yaml"`
	ArchiveDir  string  `long:"archive-dir" description:"directory for batch zip output (default: <scratch-dir>/zips)"`
	S3Target    string  `long:"s3-target" description:"upload destination (default: site config s3_target)"`
	BatchSizeGb float64 `long:"batch-size-gb" description:"maximum size per zip batch in GB" default:"10"`
	DryRun      bool    `long:"dry-run" description:"Print the three batch scripts without submitting"`
}

var pipelineCommand PipelineCommand

// stageCommands resolves the three command lines. Worker stages re-enter
// this binary, so the jobs run the same code the operator tested locally.
func (x *PipelineCommand) stageCommands(site core.Site) (map[string]string, error) {
	self, err := os.Executable()
	if err != nil {
		self = "radpipe"
	}
	deidConfig, err := deid.LoadConfig(x.DeidConfig)
	if err != nil {
		return nil, err
	}
	archiveDir := x.ArchiveDir
	if len(archiveDir) == 0 {
		scratch := site.ScratchDir
		if len(scratch) == 0 {
			scratch = "."
		}
		archiveDir = filepath.Join(scratch, "zips")
	}
	s3Target := x.S3Target
	if len(s3Target) == 0 {
		s3Target = site.S3Target
	}
	if len(s3Target) == 0 {
		return nil, errors.New("pipeline: no S3 target configured; use --s3-target or config set")
	}
	return map[string]string{
		"deid": strings.Join([]string{self, "deid", "--config", x.DeidConfig}, " "),
		"zip": strings.Join([]string{self, "zip",
			"--batch-size-gb", strconv.FormatFloat(x.BatchSizeGb, 'f', -1, 64),
			deidConfig.OutputBaseDir, archiveDir}, " "),
		"upload": strings.Join([]string{self, "upload", archiveDir, s3Target}, " "),
	}, nil
}

func (x *PipelineCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	site := core.GetSiteConfig()
	commands, err := x.stageCommands(site)
	if err != nil {
		return err
	}

	stages := []string{"deid", "zip", "upload"}
	dependency := ""
	for _, stage := range stages {
		job, jerr := stageJob(stage, site, commands[stage])
		if jerr != nil {
			return jerr
		}
		job.Dependency = dependency
		if x.DryRun {
			script, rerr := job.Render()
			if rerr != nil {
				return rerr
			}
			fmt.Printf("# stage: %s\n%s\n", stage, script)
			// fake job number so the chain renders fully
			dependency = "afterok:<" + stage + ">"
			continue
		}
		logger.InfoObj("pipeline stage "+stage, job)
		number, serr := slurm.Submit(context.Background(), job)
		if serr != nil {
			return errors.New("pipeline: " + stage + ": " + serr.Error())
		}
		fmt.Printf("Submitted batch job %d (%s)\n", number, stage)
		dependency = "afterok:" + strconv.Itoa(number)
	}
	return nil
}

func init() {
	parser.AddCommand("pipeline",
		"Submit the de-identification pipeline",
		"Submit the de-identification, archive and upload stages as three "+
			"chained batch jobs with afterok dependencies",
		&pipelineCommand)
}
