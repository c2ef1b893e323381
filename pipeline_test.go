package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "radpipe.io/core"
	slurm "radpipe.io/slurm"
)

func testSite() core.Site {
	return core.Site{
		Partition:    "general",
		GpuPartition: "gpu",
		LogDir:       "/scratch/logs",
		ScratchDir:   "/scratch/deid",
	}
}

func writeDeidConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "de_id_config.yaml")
	config := `input_dir: /data/raw
output_base_dir: /data/deid
manifest_path: /data/manifest.csv
`
	require.NoError(t, os.WriteFile(path, []byte(config), 0644))
	return path
}

func TestStageJob(t *testing.T) {
	site := testSite()

	job, err := stageJob("deid", site, "run deid")
	require.NoError(t, err)
	assert.Equal(t, "local_deid", job.Name)
	assert.Equal(t, "gpu", job.Partition)
	assert.Equal(t, []string{"gpu:1"}, job.Gres)
	assert.Equal(t, filepath.Join("/scratch/logs", "local_deid_%j.out"), job.Output)
	assert.Equal(t, filepath.Join("/scratch/logs", "local_deid_%j.err"), job.ErrorFile)
	assert.Equal(t, "run deid", job.Command)

	job, err = stageJob("zip", site, "run zip")
	require.NoError(t, err)
	assert.Equal(t, "batch_zip", job.Name)
	assert.Equal(t, "general", job.Partition)
	assert.Empty(t, job.Gres)

	_, err = stageJob("ocr", site, "run ocr")
	assert.Error(t, err)
}

func TestStageCommands(t *testing.T) {
	x := &PipelineCommand{
		DeidConfig:  writeDeidConfig(t),
		S3Target:    "s3://imaging-archive/deid/",
		BatchSizeGb: 10,
	}
	commands, err := x.stageCommands(testSite())
	require.NoError(t, err)

	assert.Contains(t, commands["deid"], "deid --config "+x.DeidConfig)
	// zip reads the deid output dir and lands under the site scratch dir
	assert.Contains(t, commands["zip"], "--batch-size-gb 10")
	assert.Contains(t, commands["zip"], "/data/deid")
	assert.Contains(t, commands["zip"], filepath.Join("/scratch/deid", "zips"))
	assert.Contains(t, commands["upload"], "s3://imaging-archive/deid/")
}

func TestStageCommandsNeedsTarget(t *testing.T) {
	x := &PipelineCommand{DeidConfig: writeDeidConfig(t), BatchSizeGb: 10}
	site := testSite()
	site.S3Target = ""
	_, err := x.stageCommands(site)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 target")
}

func TestPipelineChainsDependencies(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(core.RadpipeConfigEnv, "")

	dir := t.TempDir()
	fake := filepath.Join(dir, "sbatch")
	script := `#!/bin/sh
dir=$(dirname "$0")
n=$(cat "$dir/count" 2>/dev/null || echo 0)
n=$((n+1))
echo "$n" > "$dir/count"
cat >> "$dir/scripts"
echo "Submitted batch job $n"
`
	require.NoError(t, os.WriteFile(fake, []byte(script), 0755))
	orig := slurm.SbatchPath
	slurm.SbatchPath = fake
	defer func() { slurm.SbatchPath = orig }()

	x := &PipelineCommand{
		DeidConfig:  writeDeidConfig(t),
		S3Target:    "s3://imaging-archive/deid/",
		BatchSizeGb: 10,
	}
	require.NoError(t, x.Execute(nil))

	data, err := os.ReadFile(filepath.Join(dir, "scripts"))
	require.NoError(t, err)
	scripts := string(data)

	assert.Contains(t, scripts, "--job-name=local_deid")
	assert.Contains(t, scripts, "--job-name=batch_zip")
	assert.Contains(t, scripts, "--job-name=upload_s3")
	// zip waits on deid, upload waits on zip, deid waits on nothing
	assert.Contains(t, scripts, "--dependency=afterok:1")
	assert.Contains(t, scripts, "--dependency=afterok:2")
	assert.Equal(t, 2, strings.Count(scripts, "--dependency"))
}

func TestMergeScriptFlags(t *testing.T) {
	x := &SubmitCommand{Jobname: "from_cli", Ntasks: 1}
	require.NoError(t, mergeScriptFlags(x, []string{
		"--job-name=from_script", "--ntasks=4", "--mem=8G", "--partition=gpu",
	}))
	// explicit CLI values win, unset fields come from the script
	assert.Equal(t, "from_cli", x.Jobname)
	assert.Equal(t, 1, x.Ntasks)
	assert.Equal(t, "8G", x.Mem)
	assert.Equal(t, "gpu", x.Partition)

	y := &SubmitCommand{}
	require.NoError(t, mergeScriptFlags(y, []string{"--ntasks=4", "--dependency=afterok:7"}))
	assert.Equal(t, 4, y.Ntasks)
	assert.Equal(t, "afterok:7", y.Dependency)
}

func TestGresList(t *testing.T) {
	assert.Equal(t, []string{"gpu:2"}, gresList("", "2"))
	assert.Equal(t, []string{"mic:1", "gpu:volta:3"}, gresList("mic:1", "volta:3"))
	assert.Empty(t, gresList("", ""))
}
