package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// processSpawner runs cmd/pytrace-worker as a separate OS process — an
// isolated execution environment with its own address space, per spec
// §4.5's worker isolation rationale. A resource-ceiling watchdog samples
// the child's RSS via gopsutil and kills it if it creeps past the
// configured memory ceiling faster than the kernel rlimit would notice.
type processSpawner struct {
	binaryPath  string
	maxMemoryMB int
	logger      *logrus.Logger
}

func (p *processSpawner) Run(ctx context.Context, req WorkerRequest) (WorkerResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return WorkerResponse{}, fmt.Errorf("encoding worker request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.binaryPath)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return WorkerResponse{}, fmt.Errorf("starting worker process: %w", err)
	}

	watchdogDone := make(chan struct{})
	if p.maxMemoryMB > 0 {
		go p.watchRSS(cmd, watchdogDone)
	} else {
		close(watchdogDone)
	}

	waitErr := cmd.Wait()
	close(watchdogDone)

	if ctx.Err() == context.DeadlineExceeded {
		return WorkerResponse{}, fmt.Errorf("worker process timed out")
	}
	if waitErr != nil {
		if stderr.Len() > 0 {
			return WorkerResponse{}, fmt.Errorf("worker process failed: %w: %s", waitErr, stderr.String())
		}
		return WorkerResponse{}, fmt.Errorf("worker process failed: %w", waitErr)
	}

	var resp WorkerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return WorkerResponse{}, fmt.Errorf("decoding worker response: %w", err)
	}
	return resp, nil
}

func (p *processSpawner) watchRSS(cmd *exec.Cmd, done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	ceiling := int64(p.maxMemoryMB) * 1024 * 1024
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if cmd.Process == nil {
				continue
			}
			proc, err := process.NewProcess(int32(cmd.Process.Pid))
			if err != nil {
				continue
			}
			mem, err := proc.MemoryInfo()
			if err != nil || mem == nil {
				continue
			}
			if int64(mem.RSS) > ceiling {
				p.logger.WithFields(logrus.Fields{"pid": cmd.Process.Pid, "rss_bytes": mem.RSS}).
					Warn("worker process exceeded memory ceiling, terminating")
				_ = cmd.Process.Kill()
				return
			}
		}
	}
}
