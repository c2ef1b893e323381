package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(RadpipeConfigEnv, "")

	config := Config{
		"default": {
			Partition:    "general",
			GpuPartition: "gpu",
			LogDir:       "/scratch/logs",
			S3Target:     "s3://imaging-archive/deid/",
		},
	}
	require.NoError(t, WriteConfig(config))

	got, err := ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, config, got)
}

func TestReadConfigMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(RadpipeConfigEnv, "")

	_, err := ReadConfig()
	assert.Error(t, err)
}

func TestGetSiteConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(RadpipeConfigEnv, "")

	site := GetSiteConfig()
	assert.Equal(t, DefaultPartition, site.Partition)
	assert.Equal(t, DefaultGpuPartition, site.GpuPartition)
	assert.Equal(t, DefaultOrgRoot, site.OrgRoot)
}

func TestConfigTarget(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(RadpipeConfigEnv, "")

	assert.Equal(t, "default", ReadConfigTarget())

	require.NoError(t, WriteConfig(Config{"osu": {Partition: "batch"}}))
	require.NoError(t, WriteConfigTarget("osu"))
	assert.Equal(t, "osu", ReadConfigTarget())
	assert.Equal(t, "batch", GetSiteConfig().Partition)
}

func TestParseJobScript(t *testing.T) {
	script := `#!/bin/bash
#SBATCH --job-name=deid_mri
#SBATCH --mem=64G
#SBATCH --partition=gpu

python3 local_deid.py
`
	path := filepath.Join(t.TempDir(), "job.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0644))

	job, err := ParseJobScript("SBATCH", path)
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", job.Shell)
	assert.Equal(t, []string{"--job-name=deid_mri", "--mem=64G", "--partition=gpu"}, job.Args)
	assert.Contains(t, string(job.Script), "python3 local_deid.py")
	assert.NotContains(t, string(job.Script), "#SBATCH")
}

func TestParseJobScriptNoShebang(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.sh")
	require.NoError(t, os.WriteFile(path, []byte("hostname\n"), 0644))

	job, err := ParseJobScript("SBATCH", path)
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", job.Shell)
	assert.Empty(t, job.Args)
	assert.Equal(t, "hostname\n", string(job.Script))
}

func TestParseJobScriptDirectiveNeedsWhitespace(t *testing.T) {
	script := `#!/bin/bash
#SBATCH	--mem=64G
#SBATCHELOR --job-name=nope
hostname
`
	path := filepath.Join(t.TempDir(), "job.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0644))

	job, err := ParseJobScript("SBATCH", path)
	require.NoError(t, err)
	// tab after the token counts, a longer word does not
	assert.Equal(t, []string{"--mem=64G"}, job.Args)
	assert.Contains(t, string(job.Script), "#SBATCHELOR")
}

func TestParseJobScriptMissingFile(t *testing.T) {
	_, err := ParseJobScript("SBATCH", filepath.Join(t.TempDir(), "nope.sh"))
	assert.Error(t, err)
}
