package slurm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJob() *BatchJob {
	return &BatchJob{
		Name:        "local_deid",
		Partition:   "gpu",
		Ntasks:      1,
		CpusPerTask: 16,
		Mem:         "64G",
		Gres:        []string{"gpu:1"},
		Output:      "/scratch/logs/local_deid_%j.out",
		ErrorFile:   "/scratch/logs/local_deid_%j.err",
		Command:     "radpipe deid --config de_id_config.yaml",
	}
}

func TestBatchJobValidate(t *testing.T) {
	require.NoError(t, validJob().Validate())

	noName := validJob()
	noName.Name = "  "
	assert.Error(t, noName.Validate())

	noTasks := validJob()
	noTasks.Ntasks = 0
	assert.Error(t, noTasks.Validate())

	badMem := validJob()
	badMem.Mem = "lots"
	assert.Error(t, badMem.Validate())

	noCommand := validJob()
	noCommand.Command = "\n"
	assert.Error(t, noCommand.Validate())

	negCpus := validJob()
	negCpus.CpusPerTask = -1
	assert.Error(t, negCpus.Validate())
}

func TestBatchJobRender(t *testing.T) {
	script, err := validJob().Render()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\n"))
	for _, directive := range []string{
		"#SBATCH --job-name=local_deid",
		"#SBATCH --ntasks=1",
		"#SBATCH --cpus-per-task=16",
		"#SBATCH --mem=64G",
		"#SBATCH --partition=gpu",
		"#SBATCH --gres=gpu:1",
		"#SBATCH --output=/scratch/logs/local_deid_%j.out",
		"#SBATCH --error=/scratch/logs/local_deid_%j.err",
	} {
		assert.Contains(t, script, directive+"\n")
	}
	assert.True(t, strings.HasSuffix(script, "radpipe deid --config de_id_config.yaml\n"))
	// unset options leave no directive behind
	assert.NotContains(t, script, "--time")
	assert.NotContains(t, script, "--dependency")
}

func TestBatchJobRenderDependency(t *testing.T) {
	job := validJob()
	job.Dependency = "afterok:1234"
	script, err := job.Render()
	require.NoError(t, err)
	assert.Contains(t, script, "#SBATCH --dependency=afterok:1234\n")
}

func TestDecodeMemReq(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"64G", 64},
		{"64GB", 64},
		{"1024", 1},
		{"500M", 1},
		{"2T", 2048},
		{"1048576K", 1},
	}
	for _, tc := range cases {
		got, err := DecodeMemReq(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := DecodeMemReq("")
	assert.Error(t, err)
	_, err = DecodeMemReq("G64")
	assert.Error(t, err)
}

func TestParseGres(t *testing.T) {
	res := ParseGres("gpu:2,mic:1")
	assert.Equal(t, "2", res["gpu"].Count)
	assert.Equal(t, "1", res["mic"].Count)
	assert.Equal(t, 2, res.GpuCount())

	res = ParseGres("gpu:volta:3")
	assert.Equal(t, "volta", res["gpu"].Type)
	assert.Equal(t, 3, res.GpuCount())

	res = ParseGres("gpu")
	assert.Equal(t, 1, res.GpuCount())

	assert.Equal(t, 0, ParseGres("").GpuCount())
	assert.Equal(t, 0, ParseGres("mic:4").GpuCount())
}
