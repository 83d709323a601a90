// Command pytrace-worker is the isolated execution environment the
// supervisor spawns per trace request. It reads one JSON WorkerRequest
// from stdin, applies its own OS resource ceilings, runs the validator
// and trace collector, and writes one JSON WorkerResponse to stdout.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"pytrace/internal/result"
	"pytrace/internal/supervisor"
)

func main() {
	var req supervisor.WorkerRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(supervisor.WorkerResponse{
			Status:       result.StatusError,
			ErrorMessage: fmt.Sprintf("decoding request: %v", err),
		})
		os.Exit(1)
	}

	applyResourceCaps(req.MaxMemoryMB, req.MaxExecutionTime)

	resp := supervisor.RunInWorker(req)
	writeResponse(resp)
}

// applyResourceCaps sets RLIMIT_AS (virtual memory ceiling) and
// RLIMIT_CPU (CPU-time ceiling, spec §4.5: MAX_EXECUTION_TIME + 1
// seconds) on this process. Best-effort: platforms without these rlimits
// (or a sandbox that forbids raising/lowering them) simply run unguarded
// by this second layer, with the supervisor's RSS watchdog and wall-clock
// timeout as the remaining backstops.
func applyResourceCaps(maxMemoryMB int, maxExecutionSeconds float64) {
	if maxMemoryMB > 0 {
		bytes := uint64(maxMemoryMB) * 1024 * 1024
		_ = unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes})
	}
	if maxExecutionSeconds > 0 {
		cpuSeconds := uint64(maxExecutionSeconds) + 1
		_ = unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: cpuSeconds, Max: cpuSeconds})
	}
}

func writeResponse(resp supervisor.WorkerResponse) {
	enc := json.NewEncoder(io.Writer(os.Stdout))
	_ = enc.Encode(resp)
}
