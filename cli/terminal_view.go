// terminal_view.go - Terminal output view and keyboard input capture
// Renders the raw session stream into a TextGrid and forwards keystrokes to
// the attached session handle. Full escape-sequence emulation is out of
// scope; CSI/OSC sequences are stripped so shell output stays readable.
package main

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/mattn/go-runewidth"

	"github.com/TaylorChen/konnect/internal/session"
)

const maxScrollbackLines = 1000

// TerminalView is a focusable widget bound to one attached session handle.
type TerminalView struct {
	widget.BaseWidget

	textGrid *widget.TextGrid

	charWidth  float32
	charHeight float32

	mu      sync.Mutex
	handle  *session.Handle
	lines   []string
	cursorX int
	cols    int
	rows    int
	sized   bool
	exited  bool
}

// NewTerminalView creates a terminal view with the given font size
func NewTerminalView(fontSize int) *TerminalView {
	v := &TerminalView{
		textGrid: widget.NewTextGrid(),
		lines:    []string{""},
	}
	v.calculateCharDimensions(float32(fontSize))
	v.ExtendBaseWidget(v)
	return v
}

// calculateCharDimensions estimates monospace cell size per platform
func (v *TerminalView) calculateCharDimensions(fontSize float32) {
	switch runtime.GOOS {
	case "windows":
		v.charWidth = fontSize * 0.58
		v.charHeight = fontSize * 1.25
	case "darwin":
		v.charWidth = fontSize * 0.55
		v.charHeight = fontSize * 1.15
	default:
		v.charWidth = fontSize * 0.56
		v.charHeight = fontSize * 1.22
	}
}

// SetHandle binds the attached session handle. If the view has already
// completed its first layout pass the geometry is announced immediately;
// otherwise the next layout pass announces it.
func (v *TerminalView) SetHandle(h *session.Handle) {
	v.mu.Lock()
	v.handle = h
	sized := v.sized
	cols, rows := v.cols, v.rows
	v.mu.Unlock()

	if sized {
		h.SurfaceReady(cols, rows)
	}
}

// handleGeometry pushes a layout-derived geometry through the handle's gate
func (v *TerminalView) handleGeometry(cols, rows int) {
	v.mu.Lock()
	if cols == v.cols && rows == v.rows && v.sized {
		v.mu.Unlock()
		return
	}
	v.cols, v.rows = cols, rows
	first := !v.sized
	v.sized = true
	h := v.handle
	v.mu.Unlock()

	if h == nil {
		return
	}
	if first {
		h.SurfaceReady(cols, rows)
	} else {
		// Layout callbacks fire repeatedly while panels animate; let the
		// geometry settle before disturbing the backend.
		h.SurfaceResizedDebounced(cols, rows)
	}
}

// AppendOutput folds a raw output chunk into the display buffer.
// Safe to call from any goroutine.
func (v *TerminalView) AppendOutput(data string) {
	v.mu.Lock()
	v.foldOutput(data)
	v.mu.Unlock()

	fyne.Do(v.refreshGrid)
}

// ShowExited marks the session as ended in the display
func (v *TerminalView) ShowExited() {
	v.mu.Lock()
	v.exited = true
	v.lines = append(v.lines, "", "[session ended]")
	v.cursorX = 0
	v.trimScrollback()
	v.mu.Unlock()

	fyne.Do(v.refreshGrid)
}

// Clear empties the display buffer
func (v *TerminalView) Clear() {
	v.mu.Lock()
	v.lines = []string{""}
	v.cursorX = 0
	v.mu.Unlock()

	fyne.Do(v.refreshGrid)
}

// foldOutput applies printable text, carriage returns, newlines, and
// backspaces to the line buffer. Caller holds v.mu.
func (v *TerminalView) foldOutput(data string) {
	for _, r := range stripEscapes(data) {
		switch r {
		case '\n':
			v.lines = append(v.lines, "")
			v.cursorX = 0
		case '\r':
			v.cursorX = 0
		case '\b':
			if v.cursorX > 0 {
				v.cursorX--
			}
		case '\a':
			// Bell ignored
		case '\t':
			v.putRune(' ')
			for v.cursorX%8 != 0 {
				v.putRune(' ')
			}
		default:
			if r >= ' ' {
				v.putRune(r)
			}
		}
	}
	v.trimScrollback()
}

// putRune writes one rune at the cursor position on the last line
func (v *TerminalView) putRune(r rune) {
	line := []rune(v.lines[len(v.lines)-1])
	if v.cursorX < len(line) {
		line[v.cursorX] = r
	} else {
		for len(line) < v.cursorX {
			line = append(line, ' ')
		}
		line = append(line, r)
	}
	v.cursorX++
	v.lines[len(v.lines)-1] = string(line)
}

func (v *TerminalView) trimScrollback() {
	if len(v.lines) > maxScrollbackLines {
		v.lines = v.lines[len(v.lines)-maxScrollbackLines:]
	}
}

// stripEscapes removes CSI, OSC, and bare escape sequences from a chunk
func stripEscapes(data string) string {
	var b strings.Builder
	b.Grow(len(data))

	runes := []rune(data)
	for i := 0; i < len(runes); i++ {
		if runes[i] != 0x1b {
			b.WriteRune(runes[i])
			continue
		}

		if i+1 >= len(runes) {
			break
		}
		switch runes[i+1] {
		case '[':
			// CSI: parameters then a final byte in @..~
			j := i + 2
			for j < len(runes) && (runes[j] < 0x40 || runes[j] > 0x7e) {
				j++
			}
			i = j
		case ']':
			// OSC: terminated by BEL or ESC \
			j := i + 2
			for j < len(runes) && runes[j] != '\a' && runes[j] != 0x1b {
				j++
			}
			if j < len(runes) && runes[j] == 0x1b && j+1 < len(runes) && runes[j+1] == '\\' {
				j++
			}
			i = j
		default:
			// Two-byte sequence (ESC c, ESC =, charset selection, ...)
			i++
			if runes[i] == '(' || runes[i] == ')' {
				i++
			}
		}
	}

	return b.String()
}

// refreshGrid repaints the visible tail of the buffer. Must run on the UI
// thread.
func (v *TerminalView) refreshGrid() {
	v.mu.Lock()
	rows := v.rows
	if rows <= 0 {
		rows = 24
	}
	cols := v.cols

	start := 0
	if len(v.lines) > rows {
		start = len(v.lines) - rows
	}
	visible := make([]string, 0, rows)
	for _, line := range v.lines[start:] {
		if cols > 0 {
			line = runewidth.Truncate(line, cols, "")
		}
		visible = append(visible, line)
	}
	v.mu.Unlock()

	v.textGrid.SetText(strings.Join(visible, "\n"))
}

// write forwards bytes to the session, ignoring the unbound state
func (v *TerminalView) write(data []byte) {
	v.mu.Lock()
	h := v.handle
	v.mu.Unlock()
	if h == nil {
		return
	}
	// Write errors are already logged by the handle; the stream keeps going.
	_ = h.Write(context.Background(), data)
}

// FocusGained implements fyne.Focusable
func (v *TerminalView) FocusGained() {}

// FocusLost implements fyne.Focusable
func (v *TerminalView) FocusLost() {}

// AcceptsTab keeps Tab keystrokes in the terminal instead of moving focus
func (v *TerminalView) AcceptsTab() bool {
	return true
}

// TypedRune forwards printable input
func (v *TerminalView) TypedRune(r rune) {
	v.write([]byte(string(r)))
}

// TypedKey maps special keys to their control sequences
func (v *TerminalView) TypedKey(key *fyne.KeyEvent) {
	var data []byte

	switch key.Name {
	case fyne.KeyReturn, fyne.KeyEnter:
		data = []byte("\r")
	case fyne.KeyBackspace:
		data = []byte("\x7f")
	case fyne.KeyTab:
		data = []byte("\t")
	case fyne.KeyEscape:
		data = []byte("\x1b")
	case fyne.KeyDelete:
		data = []byte("\x1b[3~")
	case fyne.KeyUp:
		data = []byte("\x1b[A")
	case fyne.KeyDown:
		data = []byte("\x1b[B")
	case fyne.KeyRight:
		data = []byte("\x1b[C")
	case fyne.KeyLeft:
		data = []byte("\x1b[D")
	case fyne.KeyHome:
		data = []byte("\x1b[H")
	case fyne.KeyEnd:
		data = []byte("\x1b[F")
	case fyne.KeyPageUp:
		data = []byte("\x1b[5~")
	case fyne.KeyPageDown:
		data = []byte("\x1b[6~")
	case fyne.KeyF1:
		data = []byte("\x1b[11~")
	case fyne.KeyF2:
		data = []byte("\x1b[12~")
	case fyne.KeyF3:
		data = []byte("\x1b[13~")
	case fyne.KeyF4:
		data = []byte("\x1b[14~")
	case fyne.KeyF5:
		data = []byte("\x1b[15~")
	case fyne.KeyF6:
		data = []byte("\x1b[17~")
	case fyne.KeyF7:
		data = []byte("\x1b[18~")
	case fyne.KeyF8:
		data = []byte("\x1b[19~")
	case fyne.KeyF9:
		data = []byte("\x1b[20~")
	case fyne.KeyF10:
		data = []byte("\x1b[21~")
	case fyne.KeyF11:
		data = []byte("\x1b[23~")
	case fyne.KeyF12:
		data = []byte("\x1b[24~")
	}

	if len(data) > 0 {
		v.write(data)
	}
}

// TypedShortcut forwards Ctrl-letter combinations as control bytes
func (v *TerminalView) TypedShortcut(shortcut fyne.Shortcut) {
	custom, ok := shortcut.(*desktop.CustomShortcut)
	if !ok {
		return
	}
	if custom.Modifier&fyne.KeyModifierControl == 0 {
		return
	}

	name := string(custom.KeyName)
	if len(name) == 1 && name[0] >= 'A' && name[0] <= 'Z' {
		v.write([]byte{name[0] - 'A' + 1})
	}
}

// CreateRenderer implements fyne.Widget
func (v *TerminalView) CreateRenderer() fyne.WidgetRenderer {
	return &terminalViewRenderer{view: v}
}

type terminalViewRenderer struct {
	view *TerminalView
}

func (r *terminalViewRenderer) Layout(size fyne.Size) {
	r.view.textGrid.Resize(size)
	r.view.textGrid.Move(fyne.NewPos(0, 0))

	cols := int(size.Width / r.view.charWidth)
	rows := int(size.Height / r.view.charHeight)
	if cols < 2 || rows < 2 {
		return
	}

	r.view.handleGeometry(cols, rows)
}

func (r *terminalViewRenderer) MinSize() fyne.Size {
	return fyne.NewSize(r.view.charWidth*20, r.view.charHeight*5)
}

func (r *terminalViewRenderer) Refresh() {
	r.view.textGrid.Refresh()
}

func (r *terminalViewRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.view.textGrid}
}

func (r *terminalViewRenderer) Destroy() {}
