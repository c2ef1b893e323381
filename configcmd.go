package main

import (
	"errors"
	"fmt"

	core "radpipe.io/core"
)

type ConfigFlags struct {
	Help bool   `short:"h" long:"help" description:"Show this help message"`
	Site string `short:"s" long:"site" description:"site name" default:"default"`
}

type ConfigCommand struct {
	Config ConfigFlags         `group:"Configuration Options"`
	Set    ConfigSetCommand    `command:"set"`
	List   ConfigListCommand   `command:"list"`
	Target ConfigTargetCommand `command:"target"`
}

type ConfigSetCommand struct {
	Config       ConfigFlags `group:"Configuration Options" hidden:"true"`
	Partition    string      `short:"p" long:"partition" description:"default partition for CPU stages"`
	GpuPartition string      `short:"g" long:"gpu-partition" description:"partition for GPU stages"`
	LogDir       string      `short:"l" long:"log-dir" description:"directory for job stdout/stderr logs"`
	ScratchDir   string      `long:"scratch-dir" description:"scratch directory for intermediate archives"`
	S3Target     string      `long:"s3-target" description:"upload destination like s3://bucket/prefix/"`
	OrgRoot      string      `long:"org-root" description:"DICOM organization root for generated UIDs"`
}

type ConfigListCommand struct {
	Config ConfigFlags `group:"Configuration Options" hidden:"true"`
}

type ConfigTargetCommand struct {
	Config ConfigFlags `group:"Configuration Options" hidden:"true"`
}

var configCommand ConfigCommand

func (x *ConfigCommand) Execute(args []string) error {
	if x.Config.Help {
		return core.CreateHelpErr()
	}
	return nil
}

func (x *ConfigSetCommand) Execute(args []string) error {
	if x.Config.Help {
		return core.CreateHelpErr()
	}
	config, _ := core.ReadConfig()
	if config == nil {
		config = make(core.Config)
	}
	site := config[x.Config.Site]
	if len(x.Partition) > 0 {
		site.Partition = x.Partition
	}
	if len(x.GpuPartition) > 0 {
		site.GpuPartition = x.GpuPartition
	}
	if len(x.LogDir) > 0 {
		site.LogDir = x.LogDir
	}
	if len(x.ScratchDir) > 0 {
		site.ScratchDir = x.ScratchDir
	}
	if len(x.S3Target) > 0 {
		site.S3Target = x.S3Target
	}
	if len(x.OrgRoot) > 0 {
		site.OrgRoot = x.OrgRoot
	}
	config[x.Config.Site] = site
	if err := core.WriteConfig(config); err != nil {
		return errors.New("config: unable to write config file")
	}
	return nil
}

func (x *ConfigListCommand) Execute(args []string) error {
	if x.Config.Help {
		return core.CreateHelpErr()
	}
	config, _ := core.ReadConfig()
	for key := range config {
		fmt.Println(key)
	}
	return nil
}

func (x *ConfigTargetCommand) Execute(args []string) error {
	if x.Config.Help {
		return core.CreateHelpErr()
	}
	config, _ := core.ReadConfig()
	if _, ok := config[x.Config.Site]; ok {
		return core.WriteConfigTarget(x.Config.Site)
	}
	return errors.New(x.Config.Site + " configuration does not exist")
}

func init() {
	parser.AddCommand("config",
		"radpipe site configuration",
		"The config command manages per-site pipeline settings: partitions, "+
			"log and scratch directories, the S3 upload target and the DICOM "+
			"organization root",
		&configCommand)
}
