// Package slurm builds SLURM batch scripts and dispatches them to the
// external scheduler binaries. The scheduler itself is a collaborator:
// radpipe declares resource requests and hands off, nothing more.
package slurm

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

// Directive prefix recognized inside job scripts
const ScriptCmdPrefix = "SBATCH"

// BatchJob is a single resource request plus the command it wraps.
type BatchJob struct {
	Name        string
	Partition   string
	Ntasks      int
	Nodes       int
	CpusPerTask int
	// Mem uses sbatch syntax: number with optional K|M|G|T suffix
	Mem        string
	Gres       []string
	Time       string
	Chdir      string
	Output     string
	ErrorFile  string
	Dependency string
	Shell      string
	Command    string
}

var scriptTemplate = template.Must(template.New("sbatch").Parse(
	`#!{{if .Shell}}{{.Shell}}{{else}}/bin/bash{{end}}
#SBATCH --job-name={{.Name}}
#SBATCH --ntasks={{.Ntasks}}
{{- if .Nodes}}
#SBATCH --nodes={{.Nodes}}
{{- end}}
{{- if .CpusPerTask}}
#SBATCH --cpus-per-task={{.CpusPerTask}}
{{- end}}
{{- if .Mem}}
#SBATCH --mem={{.Mem}}
{{- end}}
{{- if .Partition}}
#SBATCH --partition={{.Partition}}
{{- end}}
{{- range .Gres}}
#SBATCH --gres={{.}}
{{- end}}
{{- if .Time}}
#SBATCH --time={{.Time}}
{{- end}}
{{- if .Chdir}}
#SBATCH --chdir={{.Chdir}}
{{- end}}
{{- if .Output}}
#SBATCH --output={{.Output}}
{{- end}}
{{- if .ErrorFile}}
#SBATCH --error={{.ErrorFile}}
{{- end}}
{{- if .Dependency}}
#SBATCH --dependency={{.Dependency}}
{{- end}}

{{.Command}}
`))

// Validate enforces the structural contract of a submission: a job name,
// positive task and cpu requests, a positive memory ceiling when one is
// given, and exactly one command line to dispatch.
func (j *BatchJob) Validate() error {
	if len(strings.TrimSpace(j.Name)) == 0 {
		return errors.New("slurm: job name must not be empty")
	}
	if j.Ntasks < 1 {
		return errors.New("slurm: ntasks must be positive")
	}
	if j.CpusPerTask < 0 {
		return errors.New("slurm: cpus-per-task must not be negative")
	}
	if j.Nodes < 0 {
		return errors.New("slurm: nodes must not be negative")
	}
	if len(j.Mem) > 0 {
		if gb, err := DecodeMemReq(j.Mem); err != nil {
			return err
		} else if gb < 1 {
			return errors.New("slurm: mem request must be positive")
		}
	}
	if len(strings.TrimSpace(j.Command)) == 0 {
		return errors.New("slurm: job carries no command")
	}
	return nil
}

// Render produces the batch script handed to sbatch.
func (j *BatchJob) Render() (string, error) {
	if err := j.Validate(); err != nil {
		return "", err
	}
	var b bytes.Buffer
	if err := scriptTemplate.Execute(&b, j); err != nil {
		return "", fmt.Errorf("slurm: render: %w", err)
	}
	return b.String(), nil
}

// DecodeMemReq converts an sbatch --mem value to whole gigabytes.
// Default units are megabytes, matching sbatch.
func DecodeMemReq(req string) (int, error) {
	re := regexp.MustCompile("^[0-9]+")
	te := regexp.MustCompile("[KMGT]B?$")
	match := re.FindString(req)
	if len(match) == 0 {
		return 0, errors.New("slurm: invalid mem request: " + req)
	}
	base, perr := strconv.ParseInt(match, 10, 64)
	if perr != nil {
		return 0, errors.New("slurm: invalid mem request: " + req)
	}
	var mem int64
	switch mag := te.FindString(strings.ToUpper(req)); {
	case strings.HasPrefix(mag, "K"):
		mem = base * 1024
	case strings.HasPrefix(mag, "M"):
		mem = base * 1024 * 1024
	case strings.HasPrefix(mag, "G"):
		mem = base * 1024 * 1024 * 1024
	case strings.HasPrefix(mag, "T"):
		mem = base * 1024 * 1024 * 1024 * 1024
	default:
		mem = base * 1024 * 1024
	}
	return int(math.Ceil(float64(mem) / float64(1024*1024*1024))), nil
}

type Gres struct {
	Type  string
	Count string
}

type Resources map[string]Gres

// ParseGres decodes a comma delimited --gres list: name[[:type]:count]
func ParseGres(resources string) Resources {
	res := Resources{}
	if len(resources) == 0 {
		return res
	}
	for _, resource := range strings.Split(resources, ",") {
		split := strings.Split(resource, ":")
		if len(split) == 1 {
			res[split[0]] = Gres{Count: "1"}
		} else if len(split) == 2 {
			res[split[0]] = Gres{Count: split[1]}
		} else if len(split) == 3 {
			res[split[0]] = Gres{Type: split[1], Count: split[2]}
		}
	}
	return res
}

// GpuCount sums the gpu entries of a --gres list.
func (r Resources) GpuCount() int {
	val, ok := r["gpu"]
	if !ok {
		return 0
	}
	if n, err := strconv.Atoi(val.Count); err == nil {
		return n
	}
	return 0
}
