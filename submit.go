package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"

	core "radpipe.io/core"
	logger "radpipe.io/logger"
	slurm "radpipe.io/slurm"
)

type SubmitCommand struct {
	Help        bool   `short:"h" long:"help" description:"Show this help message"`
	Chdir       string `short:"D" long:"chdir" description:"Set the working directory of the batch script before it is executed"`
	Jobname     string `short:"J" long:"job-name" description:"Specify a name for the job allocation"`
	Ntasks      int    `short:"n" long:"ntasks" description:"Maximum number of tasks the allocation must provide for (default 1)"`
	CpusPerTask int    `short:"c" long:"cpus-per-task" description:"Number of processors required per task"`
	Nodes       int    `short:"N" long:"nodes" description:"Number of nodes to be allocated to this job"`
	Time        string `short:"t" long:"time" description:"Time limit hours:minutes:seconds"`
	Partition   string `short:"p" long:"partition" description:"Request a specific partition for the resource allocation"`
	Gpus        string `short:"G" long:"gpus" description:"Specify the total number of GPUs required for the job"`
	Gres        string `long:"gres" description:"Comma delimited list of generic consumable resources: name[[:type]:count]"`
	Mem         string `long:"mem" description:"Real memory required per node. Default units are megabytes. Different units can be specified using the suffix [K|M|G|T]"`
	Output      string `short:"o" long:"output" description:"File for the batch script's standard output"`
	ErrorFile   string `short:"e" long:"error" description:"File for the batch script's standard error"`
	Dependency  string `short:"d" long:"dependency" description:"Defer the start of this job until the specified dependencies have been satisfied, e.g. afterok:123"`
	DryRun      bool   `long:"dry-run" description:"Print the generated batch script without submitting"`
	Args        struct {
		JobScript []string `positional-arg-name:"jobscript" description:"job script | job command"`
	} `positional-args:"true"`
}

var submitCommand SubmitCommand

// mergeScriptFlags parses the #SBATCH directives from a job script into the
// command struct. CLI flags win: only fields still at their zero value are
// filled from the script, matching sbatch precedence.
func mergeScriptFlags(x *SubmitCommand, scriptArgs []string) error {
	if len(scriptArgs) == 0 {
		return nil
	}
	var fromScript SubmitCommand
	scriptParser := flags.NewParser(&fromScript, flags.IgnoreUnknown)
	if _, err := scriptParser.ParseArgs(scriptArgs); err != nil {
		return err
	}
	if len(x.Jobname) == 0 {
		x.Jobname = fromScript.Jobname
	}
	if x.Ntasks == 0 {
		x.Ntasks = fromScript.Ntasks
	}
	if x.CpusPerTask == 0 {
		x.CpusPerTask = fromScript.CpusPerTask
	}
	if x.Nodes == 0 {
		x.Nodes = fromScript.Nodes
	}
	if len(x.Time) == 0 {
		x.Time = fromScript.Time
	}
	if len(x.Partition) == 0 {
		x.Partition = fromScript.Partition
	}
	if len(x.Gpus) == 0 {
		x.Gpus = fromScript.Gpus
	}
	if len(x.Gres) == 0 {
		x.Gres = fromScript.Gres
	}
	if len(x.Mem) == 0 {
		x.Mem = fromScript.Mem
	}
	if len(x.Output) == 0 {
		x.Output = fromScript.Output
	}
	if len(x.ErrorFile) == 0 {
		x.ErrorFile = fromScript.ErrorFile
	}
	if len(x.Dependency) == 0 {
		x.Dependency = fromScript.Dependency
	}
	if len(x.Chdir) == 0 {
		x.Chdir = fromScript.Chdir
	}
	return nil
}

// gresList combines --gres with the --gpus shorthand.
func gresList(gres, gpus string) []string {
	var list []string
	if len(gres) > 0 {
		list = append(list, strings.Split(gres, ",")...)
	}
	if len(gpus) > 0 {
		count := gpus
		if _, err := strconv.Atoi(count); err != nil {
			// accept type:count and keep it verbatim
			list = append(list, "gpu:"+gpus)
			return list
		}
		list = append(list, "gpu:"+count)
	}
	return list
}

func (x *SubmitCommand) buildJob() (*slurm.BatchJob, error) {
	// Job script, inline command, or stdin
	jobScriptFilename := "STDIN"
	var jobScript core.JobScript
	switch {
	case len(x.Args.JobScript) == 1:
		jobScriptFilename = x.Args.JobScript[0]
		val, err := core.ParseJobScript(slurm.ScriptCmdPrefix, jobScriptFilename)
		if err != nil {
			return nil, errors.New("submit: unable to parse job script: " + err.Error())
		}
		jobScript = val
		if err := mergeScriptFlags(x, jobScript.Args); err != nil {
			// Best effort
			fmt.Println("WARNING: unable to parse flags in jobscript")
		}
		jobScriptFilename = filepath.Base(jobScriptFilename)
	case len(x.Args.JobScript) > 1:
		jobScript = core.JobScript{
			Shell:  "/bin/sh",
			Script: []byte(strings.Join(x.Args.JobScript, " ")),
		}
	default:
		stdin, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.New("submit: missing job script")
		}
		jobScript = core.JobScript{
			Shell:  "/bin/sh",
			Script: stdin,
		}
	}

	jobName := x.Jobname
	if len(jobName) == 0 {
		jobName = jobScriptFilename
	}
	gres := gresList(x.Gres, x.Gpus)
	partition := x.Partition
	if len(partition) == 0 {
		site := core.GetSiteConfig()
		partition = site.Partition
		// GPU requests land on the GPU partition unless one was named
		if slurm.ParseGres(strings.Join(gres, ",")).GpuCount() > 0 {
			partition = site.GpuPartition
		}
	}
	ntasks := x.Ntasks
	if ntasks < 1 {
		ntasks = 1
	}

	job := &slurm.BatchJob{
		Name:        jobName,
		Partition:   partition,
		Ntasks:      ntasks,
		Nodes:       x.Nodes,
		CpusPerTask: x.CpusPerTask,
		Mem:         x.Mem,
		Gres:        gres,
		Time:        x.Time,
		Chdir:       x.Chdir,
		Output:      x.Output,
		ErrorFile:   x.ErrorFile,
		Dependency:  x.Dependency,
		Shell:       jobScript.Shell,
		Command:     strings.TrimSpace(string(jobScript.Script)),
	}
	return job, nil
}

func (x *SubmitCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	job, err := x.buildJob()
	if err != nil {
		return err
	}
	if x.DryRun {
		script, rerr := job.Render()
		if rerr != nil {
			return rerr
		}
		fmt.Print(script)
		return nil
	}
	logger.InfoObj("submit", job)
	number, err := slurm.Submit(context.Background(), job)
	if err != nil {
		return errors.New("submit: " + err.Error())
	}
	fmt.Printf("Submitted batch job %d\n", number)
	return nil
}

func init() {
	parser.AddCommand("submit",
		"Submit a batch job",
		"Build a SLURM batch script from resource flags and #SBATCH "+
			"directives and dispatch it with sbatch",
		&submitCommand)
}
