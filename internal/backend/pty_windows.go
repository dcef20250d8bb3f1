// pty_windows.go - Windows ConPTY
//go:build windows

package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/ActiveState/termtest/conpty"

	"github.com/TaylorChen/konnect/internal/session"
)

type windowsPTY struct {
	cpty    *conpty.ConPty
	inPipe  *os.File
	outPipe *os.File
	process *os.Process
}

func startPTY(params session.LocalParams) (ptyHandle, error) {
	cpty, err := conpty.New(int16(params.Cols), int16(params.Rows))
	if err != nil {
		return nil, fmt.Errorf("failed to create ConPTY: %w", err)
	}

	shell := params.Shell
	if shell == "" {
		systemRoot := os.Getenv("SYSTEMROOT")
		if systemRoot == "" {
			systemRoot = os.Getenv("WINDIR")
			if systemRoot == "" {
				systemRoot = `C:\Windows`
			}
		}
		shell = filepath.Join(systemRoot, "System32", "cmd.exe")
	}

	env := append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		fmt.Sprintf("COLUMNS=%d", params.Cols),
		fmt.Sprintf("LINES=%d", params.Rows),
		"ANSICON=1",
	)

	pid, _, err := cpty.Spawn(shell, nil, &syscall.ProcAttr{Env: env})
	if err != nil {
		cpty.Close()
		return nil, fmt.Errorf("failed to spawn shell: %w", err)
	}

	process, err := os.FindProcess(int(pid))
	if err != nil {
		cpty.Close()
		return nil, fmt.Errorf("failed to find process: %w", err)
	}

	return &windowsPTY{
		cpty:    cpty,
		inPipe:  cpty.InPipe(),
		outPipe: cpty.OutPipe(),
		process: process,
	}, nil
}

func (w *windowsPTY) Write(data []byte) (int, error) {
	if w.inPipe == nil {
		return 0, fmt.Errorf("input pipe not available")
	}
	return w.inPipe.Write(data)
}

func (w *windowsPTY) Read(data []byte) (int, error) {
	if w.outPipe == nil {
		return 0, fmt.Errorf("output pipe not available")
	}
	return w.outPipe.Read(data)
}

func (w *windowsPTY) Resize(cols, rows int) error {
	if w.cpty == nil {
		return fmt.Errorf("ConPTY not available")
	}
	return w.cpty.Resize(uint16(cols), uint16(rows))
}

func (w *windowsPTY) Close() error {
	var errs []error

	if w.inPipe != nil {
		if err := w.inPipe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.outPipe != nil {
		if err := w.outPipe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.cpty != nil {
		if err := w.cpty.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.process != nil {
		if err := w.process.Kill(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple close errors: %v", errs)
	}
	return nil
}
