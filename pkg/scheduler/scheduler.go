// Package scheduler drives the external build scheduler: a pause flag file
// it checks between cycles, its log files, and the deploy script.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	schedulerTailLines = 20
	verifyTailLines    = 10
)

var (
	successRe = regexp.MustCompile(`(\d+) successes`)
	failureRe = regexp.MustCompile(`(\d+) failures`)
)

type Stats struct {
	TotalCycles int `json:"total_cycles"`
	Successes   int `json:"successes"`
	Failures    int `json:"failures"`
}

type Status struct {
	Paused           bool     `json:"paused"`
	SchedulerRunning bool     `json:"scheduler_running"`
	Stats            Stats    `json:"stats"`
	SchedulerLog     []string `json:"scheduler_log"`
	VerifyLog        []string `json:"verify_log"`
}

// Controller manipulates the scheduler through the filesystem contract it
// shares with the build scripts: a pause flag and two log files.
type Controller struct {
	pauseFlag     string
	schedulerLog  string
	verifyLog     string
	deployScript  string
	deployTimeout time.Duration
}

func New(pauseFlag, schedulerLog, verifyLog, deployScript string, deployTimeout time.Duration) *Controller {
	return &Controller{
		pauseFlag:     pauseFlag,
		schedulerLog:  schedulerLog,
		verifyLog:     verifyLog,
		deployScript:  deployScript,
		deployTimeout: deployTimeout,
	}
}

// Pause writes the flag file the scheduler checks at the start of each
// cycle. Idempotent: rewriting an existing flag just refreshes it.
func (c *Controller) Pause() error {
	content := fmt.Sprintf("Paused at %v\n", time.Now().UTC().Format(time.RFC3339))
	return errors.Wrap(os.WriteFile(c.pauseFlag, []byte(content), 0644), "failed to write pause flag")
}

// Resume removes the pause flag. The returned bool is false when the
// scheduler was not paused to begin with.
func (c *Controller) Resume() (bool, error) {
	if !c.Paused() {
		return false, nil
	}

	if err := os.Remove(c.pauseFlag); err != nil {
		return false, errors.Wrap(err, "failed to remove pause flag")
	}
	return true, nil
}

func (c *Controller) Paused() bool {
	_, err := os.Stat(c.pauseFlag)
	return err == nil
}

// Status summarizes the scheduler from its log files.
func (c *Controller) Status() Status {
	schedulerLog := tailLines(c.schedulerLog, schedulerTailLines)
	verifyLog := tailLines(c.verifyLog, verifyTailLines)

	return Status{
		Paused:           c.Paused(),
		SchedulerRunning: len(schedulerLog) > 0,
		Stats:            parseStats(schedulerLog),
		SchedulerLog:     schedulerLog,
		VerifyLog:        verifyLog,
	}
}

// Deploy runs the deploy script and waits for it, bounded by the
// configured timeout. Non-zero exit and timeout both come back as errors
// so the caller can surface a structured failure instead of hanging.
func (c *Controller) Deploy(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deployTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.deployScript)
	// Without this, a killed script whose children still hold the output
	// pipe would keep the request hanging past the deadline.
	cmd.WaitDelay = 5 * time.Second
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), errors.Errorf("deploy script timed out after %v", c.deployTimeout)
	}
	if err != nil {
		return string(out), errors.Wrap(err, "deploy script failed")
	}

	return string(out), nil
}

func tailLines(path string, n int) []string {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// parseStats pulls success/failure counts from the newest Stats: line the
// scheduler wrote.
func parseStats(lines []string) Stats {
	stats := Stats{}
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.Contains(lines[i], "Stats:") {
			continue
		}

		if m := successRe.FindStringSubmatch(lines[i]); m != nil {
			stats.Successes, _ = strconv.Atoi(m[1])
		}
		if m := failureRe.FindStringSubmatch(lines[i]); m != nil {
			stats.Failures, _ = strconv.Atoi(m[1])
		}
		stats.TotalCycles = stats.Successes + stats.Failures
		break
	}

	return stats
}
