package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	core "radpipe.io/core"
	slurm "radpipe.io/slurm"
)

type CancelCommand struct {
	Help bool `short:"h" long:"help" description:"Show this help message"`
	Args struct {
		JobNumbers []string `positional-arg-name:"jobid" description:"job IDs to cancel"`
	} `positional-args:"true"`
}

var cancelCommand CancelCommand

func (x *CancelCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	if len(x.Args.JobNumbers) == 0 {
		return errors.New("cancel: need to specify job ID")
	}
	if err := slurm.Cancel(context.Background(), x.Args.JobNumbers); err != nil {
		return errors.New("cancel: " + err.Error())
	}
	fmt.Printf("Canceled job: %v\n", strings.Join(x.Args.JobNumbers, " "))
	return nil
}

func init() {
	parser.AddCommand("cancel",
		"Cancel jobs",
		"Terminate queued or running jobs via scancel",
		&cancelCommand)
}
