package main

import (
	"context"
	"errors"
	"fmt"
	"os/user"

	core "radpipe.io/core"
	slurm "radpipe.io/slurm"
)

type QueueCommand struct {
	Help bool   `short:"h" long:"help" description:"Show this help message"`
	User string `short:"u" long:"user" description:"limit listing to jobs of this user (default: current user)"`
	Args struct {
		JobNumber string `positional-arg-name:"jobid" description:"limit listing to one job"`
	} `positional-args:"true"`
}

var queueCommand QueueCommand

func (x *QueueCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	who := x.User
	if len(who) == 0 && len(x.Args.JobNumber) == 0 {
		if current, err := user.Current(); err == nil {
			who = current.Username
		}
	}
	out, err := slurm.Queue(context.Background(), who, x.Args.JobNumber)
	if err != nil {
		return errors.New("queue: " + err.Error())
	}
	fmt.Print(out)
	return nil
}

func init() {
	parser.AddCommand("queue",
		"List queued jobs",
		"List pending and running jobs via squeue",
		&queueCommand)
}
