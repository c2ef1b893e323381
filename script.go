package main

import (
	"errors"
	"fmt"

	core "radpipe.io/core"
	logger "radpipe.io/logger"
)

type ScriptCommand struct {
	Help bool `short:"h" long:"help" description:"Show this help message"`
	Args struct {
		Stage string `positional-arg-name:"stage" description:"deid | zip | upload"`
	} `positional-args:"true" required:"1"`
}

var scriptCommand ScriptCommand

func (x *ScriptCommand) Execute(args []string) error {
	if x.Help {
		return core.CreateHelpErr()
	}
	site := core.GetSiteConfig()
	job, err := stageJob(x.Args.Stage, site, "# command filled in by pipeline")
	if err != nil {
		return errors.New("script: " + err.Error())
	}
	logger.DebugObj("script stage", job)
	script, err := job.Render()
	if err != nil {
		return err
	}
	fmt.Print(script)
	return nil
}

func init() {
	parser.AddCommand("script",
		"Render a stage batch script",
		"Render the batch script a pipeline stage would submit, without "+
			"submitting it",
		&scriptCommand)
}
