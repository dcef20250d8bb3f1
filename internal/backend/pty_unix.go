// pty_unix.go - Unix PTY via creack/pty
//go:build !windows

package backend

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/TaylorChen/konnect/internal/session"
)

type unixPTY struct {
	ptyFile *os.File
	cmd     *exec.Cmd
}

func startPTY(params session.LocalParams) (ptyHandle, error) {
	shell := params.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		if runtime.GOOS == "darwin" {
			shell = "/bin/zsh"
		} else {
			shell = "/bin/bash"
		}
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		fmt.Sprintf("COLUMNS=%d", params.Cols),
		fmt.Sprintf("LINES=%d", params.Rows),
		"LC_ALL=C.UTF-8",
		"LANG=C.UTF-8",
	)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start shell %s: %w", shell, err)
	}

	pty.Setsize(ptmx, &pty.Winsize{
		Rows: uint16(params.Rows),
		Cols: uint16(params.Cols),
	})

	return &unixPTY{ptyFile: ptmx, cmd: cmd}, nil
}

func (u *unixPTY) Write(data []byte) (int, error) {
	if u.ptyFile == nil {
		return 0, fmt.Errorf("PTY file not available")
	}
	return u.ptyFile.Write(data)
}

func (u *unixPTY) Read(data []byte) (int, error) {
	if u.ptyFile == nil {
		return 0, fmt.Errorf("PTY file not available")
	}
	return u.ptyFile.Read(data)
}

func (u *unixPTY) Resize(cols, rows int) error {
	if u.ptyFile == nil {
		return fmt.Errorf("PTY file not available")
	}
	return pty.Setsize(u.ptyFile, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

func (u *unixPTY) Close() error {
	var errs []error

	if u.ptyFile != nil {
		if err := u.ptyFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if u.cmd != nil && u.cmd.Process != nil {
		// Graceful shutdown first, then force.
		u.cmd.Process.Signal(syscall.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		if err := u.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
			errs = append(errs, err)
		}
		go u.cmd.Wait() // reap
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple close errors: %v", errs)
	}
	return nil
}
