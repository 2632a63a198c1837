package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// ErrAlreadyRunning is returned when another monitor process shares the executable name.
var ErrAlreadyRunning = errors.New("another presence monitor is already running")

// processLister returns the running processes; ps.Processes in production.
type processLister func() ([]ps.Process, error)

// ensureSingleInstance fails when a process other than selfPID runs the same
// executable. Two monitors would double every alarm.
func ensureSingleInstance(list processLister, executable string, selfPID int) error {
	processList, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processList {
		if process.Pid() == selfPID {
			continue
		}

		if process.Executable() != executable {
			continue
		}

		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, process.Pid())
	}

	return nil
}

// currentExecutable returns the file name of the running binary.
func currentExecutable() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}

	return filepath.Base(path), nil
}
