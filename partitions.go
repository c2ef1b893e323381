package main

import (
	"context"
	"errors"
	"fmt"

	core "radpipe.io/core"
	slurm "radpipe.io/slurm"
)

type PartitionsCommand struct {
	Help bool `short:"h" long:"help" description:"Show this help message"`
	Args struct {
		Partition string `positional-arg-name:"partition" description:"limit listing to one partition"`
	} `positional-args:"true"`
}

var partitionsCommand PartitionsCommand

func (x *PartitionsCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	out, err := slurm.Partitions(context.Background(), x.Args.Partition)
	if err != nil {
		return errors.New("partitions: " + err.Error())
	}
	fmt.Print(out)
	return nil
}

func init() {
	parser.AddCommand("partitions",
		"List partitions",
		"View node and partition state via sinfo",
		&partitionsCommand)
}
