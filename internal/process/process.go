// Package process finds and cleans up agent CLI processes left behind by the bridge.
package process

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zhubert/plural-bridge/internal/logger"
)

// ClaudeProcess represents a running Claude CLI process found on the system.
type ClaudeProcess struct {
	PID       int    // Process ID
	Command   string // Full command line
	SessionID string // Value of --resume, empty for one-shot invocations
}

// lister returns candidate processes for a binary name. Replaced in tests.
var lister = listProcesses

// killer terminates a process. Replaced in tests.
var killer = KillProcess

// FindClaudeProcesses finds running streaming sessions started with
// `<binary> --resume <id>`. Those are the only bridge processes that can
// outlive a crash; one-shot exchanges die with their timeout.
func FindClaudeProcesses(binary string) ([]ClaudeProcess, error) {
	log := logger.ComponentLogger("process")

	candidates, err := lister(filepath.Base(binary))
	if err != nil {
		return nil, err
	}

	var processes []ClaudeProcess
	for _, proc := range candidates {
		proc.SessionID = extractSessionID(proc.Command)
		if proc.SessionID == "" {
			continue
		}
		processes = append(processes, proc)
	}

	log.Debug("found Claude processes", "count", len(processes))
	return processes, nil
}

// listProcesses shells out to pgrep and ps to find processes whose command
// line mentions name together with --resume.
func listProcesses(name string) ([]ClaudeProcess, error) {
	var processes []ClaudeProcess

	switch runtime.GOOS {
	case "darwin", "linux":
		cmd := exec.Command("pgrep", "-f", name+".*--resume")
		output, err := cmd.Output()
		if err != nil {
			// pgrep returns exit code 1 if no processes found
			if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
				return processes, nil
			}
			return nil, err
		}

		for _, pidStr := range strings.Fields(string(output)) {
			pid, err := strconv.Atoi(pidStr)
			if err != nil {
				continue
			}

			psOutput, err := exec.Command("ps", "-p", pidStr, "-o", "args=").Output()
			if err != nil {
				// Exited between pgrep and ps
				continue
			}

			processes = append(processes, ClaudeProcess{
				PID:     pid,
				Command: strings.TrimSpace(string(psOutput)),
			})
		}

	case "windows":
		cmd := exec.Command("wmic", "process", "where", "name like '"+name+"%'", "get", "ProcessId,CommandLine", "/FORMAT:CSV")
		output, err := cmd.Output()
		if err != nil {
			return nil, err
		}

		for line := range strings.SplitSeq(string(output), "\n") {
			// Node,CommandLine,ProcessId
			fields := strings.Split(strings.TrimSpace(line), ",")
			if len(fields) < 3 {
				continue
			}
			pid, err := strconv.Atoi(fields[len(fields)-1])
			if err != nil {
				continue
			}
			processes = append(processes, ClaudeProcess{
				PID:     pid,
				Command: strings.Join(fields[1:len(fields)-1], ","),
			})
		}
	}

	return processes, nil
}

// KillProcess kills a process by PID.
func KillProcess(pid int) error {
	switch runtime.GOOS {
	case "darwin", "linux":
		return exec.Command("kill", "-9", strconv.Itoa(pid)).Run()
	case "windows":
		return exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
	}
	return fmt.Errorf("killing processes is not supported on %s", runtime.GOOS)
}

// FindOrphanedClaudeProcesses returns streaming processes whose session ID
// is not in knownSessionIDs.
func FindOrphanedClaudeProcesses(binary string, knownSessionIDs map[string]bool) ([]ClaudeProcess, error) {
	allProcesses, err := FindClaudeProcesses(binary)
	if err != nil {
		return nil, err
	}

	log := logger.ComponentLogger("process")
	var orphans []ClaudeProcess
	for _, proc := range allProcesses {
		if knownSessionIDs[proc.SessionID] {
			continue
		}
		orphans = append(orphans, proc)
		log.Info("found orphaned Claude process", "pid", proc.PID, "sessionID", proc.SessionID)
	}

	return orphans, nil
}

// extractSessionID returns the value following --resume in a command line.
func extractSessionID(cmdLine string) string {
	fields := strings.Fields(cmdLine)
	for i, field := range fields {
		if value, ok := strings.CutPrefix(field, "--resume="); ok {
			return value
		}
		if field == "--resume" && i+1 < len(fields) {
			next := fields[i+1]
			if strings.HasPrefix(next, "-") {
				return ""
			}
			return next
		}
	}
	return ""
}

// CleanupOrphanedProcesses kills all streaming processes that don't match
// known session IDs. Returns the number of processes killed.
func CleanupOrphanedProcesses(binary string, knownSessionIDs map[string]bool) (int, error) {
	orphans, err := FindOrphanedClaudeProcesses(binary, knownSessionIDs)
	if err != nil {
		return 0, err
	}

	log := logger.ComponentLogger("process")
	killed := 0
	for _, proc := range orphans {
		log.Info("killing orphaned Claude process", "pid", proc.PID)
		if err := killer(proc.PID); err != nil {
			log.Error("failed to kill process", "pid", proc.PID, "error", err)
			continue
		}
		killed++
	}

	return killed, nil
}
