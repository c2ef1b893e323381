package slurm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	logger "radpipe.io/logger"
)

// Scheduler binaries; overridable for clusters with non-standard paths.
var (
	SbatchPath  = envOr("RADPIPE_SBATCH", "sbatch")
	SqueuePath  = envOr("RADPIPE_SQUEUE", "squeue")
	ScancelPath = envOr("RADPIPE_SCANCEL", "scancel")
	SinfoPath   = envOr("RADPIPE_SINFO", "sinfo")
)

func envOr(key, backup string) string {
	if val := os.Getenv(key); len(val) > 0 {
		return val
	}
	return backup
}

var submittedRe = regexp.MustCompile(`Submitted batch job ([0-9]+)`)

// Submit renders the job and feeds it to sbatch on stdin.
// Returns the job number parsed from sbatch output.
func Submit(ctx context.Context, job *BatchJob) (int, error) {
	script, err := job.Render()
	if err != nil {
		return 0, err
	}
	logger.DebugPrintf("sbatch script for %q:\n%s", job.Name, script)

	cmd := exec.CommandContext(ctx, SbatchPath)
	cmd.Stdin = strings.NewReader(script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// sbatch failures pass through untouched: no retry, no recovery
		msg := strings.TrimSpace(stderr.String())
		if len(msg) == 0 {
			msg = err.Error()
		}
		return 0, errors.New("sbatch: " + msg)
	}
	match := submittedRe.FindStringSubmatch(stdout.String())
	if match == nil {
		return 0, errors.New("sbatch: unexpected output: " + strings.TrimSpace(stdout.String()))
	}
	number, _ := strconv.Atoi(match[1])
	return number, nil
}

// Queue runs squeue for the given user and/or job and relays its output.
func Queue(ctx context.Context, user, jobNumber string) (string, error) {
	args := []string{}
	if len(user) > 0 {
		args = append(args, "-u", user)
	}
	if len(jobNumber) > 0 {
		args = append(args, "-j", jobNumber)
	}
	out, err := exec.CommandContext(ctx, SqueuePath, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("squeue: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Partitions runs sinfo, optionally limited to one partition, and relays
// its node and partition state listing.
func Partitions(ctx context.Context, partition string) (string, error) {
	args := []string{}
	if len(partition) > 0 {
		args = append(args, "-p", partition)
	}
	out, err := exec.CommandContext(ctx, SinfoPath, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("sinfo: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Cancel asks scancel to terminate the given jobs.
func Cancel(ctx context.Context, jobNumbers []string) error {
	if len(jobNumbers) == 0 {
		return errors.New("scancel: need to specify job ID")
	}
	out, err := exec.CommandContext(ctx, ScancelPath, jobNumbers...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("scancel: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
