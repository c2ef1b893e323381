package core

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

const (
	RadpipeConfigPath      = "/.config/radpipe/"
	RadpipeConfigFilename  = "config.json"
	RadpipeTargetFilename  = "target"
	RadpipeConfigFilePerms = 0600
)

const RadpipeConfigEnv = "RADPIPE_CONFIG"

// Defaults applied when a site entry leaves a field empty
const (
	DefaultPartition    = "general"
	DefaultGpuPartition = "gpu"
	DefaultOrgRoot      = "1.3.6.1.4.1.11129.5.1"
)

// Site holds per-cluster pipeline settings
/*
{
	"default": {
		"partition": "general",
		"gpu_partition": "gpu",
		"log_dir": "/scratch/logs",
		"scratch_dir": "/scratch/deid",
		"s3_target": "s3://imaging-archive/deid/",
		"org_root": "1.3.6.1.4.1.11129.5.1"
	}
}
*/
type Site struct {
	Partition    string `json:"partition"`
	GpuPartition string `json:"gpu_partition"`
	LogDir       string `json:"log_dir"`
	ScratchDir   string `json:"scratch_dir"`
	S3Target     string `json:"s3_target"`
	OrgRoot      string `json:"org_root"`
}

type Config map[string]Site

// Data for an HPC job script
/*
#!/bin/bash
#SBATCH --job-name=deid_mri    # Job name
#SBATCH --mem=64G
python3 local_deid.py
*/
type JobScript struct {
	Shell string `json:"hpc_shell"`
	// Args parsed from the #SBATCH directives
	Args   []string `json:"hpc_args"`
	Script []byte   `json:"hpc_script"`
}

func CreateHelpErr() error {
	err := flags.Error{
		Type:    flags.ErrHelp,
		Message: "show help message",
	}
	return &err
}

func fileExist(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Build path for config file
// Set from environment or use backup under HOME
// Use current directory as last resort
func getConfigPath() string {
	configPath := os.Getenv(RadpipeConfigEnv)
	if fileExist(configPath) {
		return configPath
	}
	backupPath := os.Getenv("HOME") + RadpipeConfigPath
	if fileExist(backupPath + RadpipeConfigFilename) {
		return backupPath + RadpipeConfigFilename
	}
	if err := os.MkdirAll(backupPath, 0744); err != nil {
		return RadpipeConfigFilename
	}
	return backupPath + RadpipeConfigFilename
}

func WriteConfig(config Config) error {
	configFile := getConfigPath()
	file, err := json.MarshalIndent(config, "", "	")
	if err != nil {
		return err
	}
	// Ensure config file uses proper permissions
	os.Chmod(configFile, RadpipeConfigFilePerms)
	return os.WriteFile(configFile, file, RadpipeConfigFilePerms)
}

func ReadConfig() (Config, error) {
	filename := getConfigPath()
	if !fileExist(filename) {
		return Config{}, errors.New("cannot read radpipe config")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}
	var config Config
	json.Unmarshal(data, &config)
	// Check if any site was found in config file
	if len(config) == 0 {
		return Config{}, errors.New("invalid radpipe config")
	}
	return config, nil
}

// Selected site name persisted next to the config file
func targetPath() string {
	return os.Getenv("HOME") + RadpipeConfigPath + RadpipeTargetFilename
}

func WriteConfigTarget(site string) error {
	return os.WriteFile(targetPath(), []byte(site), RadpipeConfigFilePerms)
}

func ReadConfigTarget() string {
	data, err := os.ReadFile(targetPath())
	if err != nil {
		return "default"
	}
	if name := strings.TrimSpace(string(data)); len(name) > 0 {
		return name
	}
	return "default"
}

// GetSiteConfig returns the selected site entry with defaults filled in.
// Missing config is not fatal: submission works on a bare cluster.
func GetSiteConfig() Site {
	site := Site{}
	if config, err := ReadConfig(); err == nil {
		if val, ok := config[ReadConfigTarget()]; ok {
			site = val
		}
	}
	if len(site.Partition) == 0 {
		site.Partition = DefaultPartition
	}
	if len(site.GpuPartition) == 0 {
		site.GpuPartition = DefaultGpuPartition
	}
	if len(site.OrgRoot) == 0 {
		site.OrgRoot = DefaultOrgRoot
	}
	return site
}

// ParseJobScript splits a submission script into its shell line, the
// scheduler arguments carried on "#<directive>" lines, and the payload.
func ParseJobScript(directive, filename string) (JobScript, error) {
	file, err := os.Open(filename)
	if err != nil {
		return JobScript{}, err
	}
	defer file.Close()

	shell := "/bin/sh"
	var args []string
	var script []byte
	prefix := "#" + directive

	scanner := bufio.NewScanner(file)
	if scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "#!") {
			shell = line[2:]
		} else {
			script = append(script, line...)
			script = append(script, '\n')
		}
	}
	parsed := false
	for scanner.Scan() {
		line := scanner.Text()
		if !parsed && strings.HasPrefix(line, prefix) {
			// the directive token must be followed by whitespace
			rest := line[len(prefix):]
			if len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t') {
				args = append(args, strings.Fields(rest)...)
				continue
			}
		}
		if len(strings.TrimSpace(line)) > 0 {
			parsed = true
		}
		script = append(script, line...)
		script = append(script, '\n')
	}
	if err := scanner.Err(); err != nil {
		return JobScript{}, err
	}
	return JobScript{
		Shell:  shell,
		Args:   args,
		Script: script,
	}, nil
}
