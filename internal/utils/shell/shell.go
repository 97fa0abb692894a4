// Package shell runs external tools such as rpmbuild and records their
// output in log files.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
)

const timeFormat = "2006-01-02 15:04:05"

// Command describes one invocation of an external program.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // extra KEY=VALUE pairs appended to the process environment
}

// String renders the command the way it is echoed into logs and error messages.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// RunError reports a failed external command. LogFile, when set, holds the
// complete captured output.
type RunError struct {
	Cmd     string
	Msg     string
	LogFile string
}

func (e *RunError) Error() string {
	if e.LogFile != "" {
		return fmt.Sprintf("command %q failed with %s (see %s)", e.Cmd, e.Msg, e.LogFile)
	}
	return fmt.Sprintf("command %q failed with %s", e.Cmd, e.Msg)
}

// Executor runs a command, streaming stdout and stderr into out.
type Executor interface {
	Exec(cmd Command, out io.Writer) error
}

type osExecutor struct{}

func (osExecutor) Exec(c Command, out io.Writer) error {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd.Run()
}

// Default is the executor used by ExecCmdWithLog. Tests replace it.
var Default Executor = osExecutor{}

func exitMessage(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	return err.Error()
}

// ExecCmdWithLog runs cmd with all of its output redirected to logFile, which is
// framed by a start line and an end line carrying the status and elapsed time.
// The log is kept whatever the outcome.
func ExecCmdWithLog(cmd Command, logFile string) error {
	log := logger.Logger()
	log.Debugf("Exec: [%s] > %s", cmd, logFile)

	return withLogFile(logFile, cmd.String(), func(w io.Writer) error {
		if err := Default.Exec(cmd, w); err != nil {
			return &RunError{Cmd: cmd.String(), Msg: exitMessage(err), LogFile: logFile}
		}
		return nil
	})
}

// FuncWithLog runs fn with a writer into logFile framed the same way as
// ExecCmdWithLog. It is used for multi-command steps such as archive creation.
func FuncWithLog(title, logFile string, fn func(w io.Writer) error) error {
	return withLogFile(logFile, title, func(w io.Writer) error {
		if err := fn(w); err != nil {
			fmt.Fprintf(w, "%v\n", err)
			var runErr *RunError
			if errors.As(err, &runErr) {
				return &RunError{Cmd: runErr.Cmd, Msg: runErr.Msg, LogFile: logFile}
			}
			return &RunError{Cmd: title, Msg: err.Error(), LogFile: logFile}
		}
		return nil
	})
}

func withLogFile(logFile, title string, fn func(w io.Writer) error) error {
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating log file %s: %w", logFile, err)
	}
	defer f.Close()

	start := time.Now()
	fmt.Fprintf(f, "[%s, %s]\n", start.Format(timeFormat), title)

	runErr := fn(f)

	status := "exit code 0"
	if runErr != nil {
		var re *RunError
		if errors.As(runErr, &re) {
			status = re.Msg
		} else {
			status = runErr.Error()
		}
	}
	end := time.Now()
	fmt.Fprintf(f, "[%s, %s, %.3f s]\n", end.Format(timeFormat), status, end.Sub(start).Seconds())

	return runErr
}

// Tail returns up to n last lines of a log file.
func Tail(logFile string, n int) ([]string, error) {
	f, err := os.Open(logFile)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", logFile, err)
	}
	defer f.Close()

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) == n {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", logFile, err)
	}
	return lines, nil
}

// RotateLog moves an existing log to <log>.bak, replacing any previous backup.
func RotateLog(logFile string) error {
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		return nil
	}
	bak := logFile + ".bak"
	if err := os.Remove(bak); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", bak, err)
	}
	if err := os.Rename(logFile, bak); err != nil {
		return fmt.Errorf("cannot rename %s to .bak: %w", logFile, err)
	}
	return nil
}
