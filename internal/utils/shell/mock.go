package shell

import (
	"fmt"
	"io"
	"regexp"
	"sync"
)

// MockCommand maps a command line pattern (a regular expression) to canned
// output and an optional error.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
}

// MockExecutor replays MockCommands instead of spawning processes and records
// every command line it was asked to run.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	Calls    []string
}

func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{commands: commands}
}

func (m *MockExecutor) Exec(cmd Command, out io.Writer) error {
	line := cmd.String()

	m.mu.Lock()
	m.Calls = append(m.Calls, line)
	m.mu.Unlock()

	for _, mc := range m.commands {
		matched, err := regexp.MatchString(mc.Pattern, line)
		if err != nil {
			return fmt.Errorf("bad mock pattern %q: %w", mc.Pattern, err)
		}
		if !matched {
			continue
		}
		if mc.Output != "" {
			if _, err := io.WriteString(out, mc.Output); err != nil {
				return err
			}
		}
		return mc.Error
	}
	return fmt.Errorf("no mock registered for command: %s", line)
}
