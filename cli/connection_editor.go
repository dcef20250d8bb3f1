// connection_editor.go - Modal dialog for CRUD operations on connections
// Provides a full editor interface for managing connections and folders
package main

import (
	"fmt"
	"sort"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/TaylorChen/konnect/internal/session"
)

// ConnectionEditor provides a modal interface for managing saved connections
type ConnectionEditor struct {
	window fyne.Window
	store  *ConnectionStore
	onSave func() // Callback when connections are modified

	// UI components
	folderList *widget.List
	connList   *widget.List

	// Current selection state
	selectedFolder string
	selectedConn   *Connection
	folders        []string
	conns          []Connection
}

// NewConnectionEditor creates a new connection editor
func NewConnectionEditor(window fyne.Window, store *ConnectionStore, onSave func()) *ConnectionEditor {
	editor := &ConnectionEditor{
		window: window,
		store:  store,
		onSave: onSave,
	}
	editor.refreshData()
	return editor
}

// refreshData reloads folders and connections from the store
func (e *ConnectionEditor) refreshData() {
	e.folders = e.store.GetFolders()
	sort.Strings(e.folders)

	if e.selectedFolder != "" {
		byFolder := e.store.GetConnectionsByFolder()
		e.conns = byFolder[e.selectedFolder]
	} else {
		e.conns = nil
	}
}

// Show displays the connection editor modal
func (e *ConnectionEditor) Show() {
	e.refreshData()

	content := e.buildUI()

	d := dialog.NewCustom("Connection Manager", "Close", content, e.window)
	d.Resize(fyne.NewSize(800, 500))
	d.Show()
}

// buildUI constructs the editor interface
func (e *ConnectionEditor) buildUI() fyne.CanvasObject {
	// Left panel: Folders
	folderHeader := container.NewBorder(
		nil, nil,
		widget.NewLabelWithStyle("Folders", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(
			widget.NewButtonWithIcon("", theme.ContentAddIcon(), e.showAddFolderDialog),
			widget.NewButtonWithIcon("", theme.DeleteIcon(), e.deleteSelectedFolder),
		),
	)

	e.folderList = widget.NewList(
		func() int { return len(e.folders) },
		func() fyne.CanvasObject {
			return container.NewHBox(
				widget.NewIcon(theme.FolderIcon()),
				widget.NewLabel("Folder Name"),
			)
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			box := item.(*fyne.Container)
			label := box.Objects[1].(*widget.Label)
			label.SetText(e.folders[id])
		},
	)

	e.folderList.OnSelected = func(id widget.ListItemID) {
		e.selectedFolder = e.folders[id]
		e.selectedConn = nil
		e.refreshData()
		if e.connList != nil {
			e.connList.UnselectAll()
			e.connList.Refresh()
		}
	}

	folderPanel := container.NewBorder(folderHeader, nil, nil, nil,
		container.NewVScroll(e.folderList))

	// Right panel: Connections
	connHeader := container.NewBorder(
		nil, nil,
		widget.NewLabelWithStyle("Connections", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(
			widget.NewButtonWithIcon("", theme.ContentAddIcon(), e.showAddConnectionDialog),
			widget.NewButtonWithIcon("", theme.DocumentCreateIcon(), e.showEditConnectionDialog),
			widget.NewButtonWithIcon("", theme.DeleteIcon(), e.deleteSelectedConnection),
		),
	)

	e.connList = widget.NewList(
		func() int { return len(e.conns) },
		func() fyne.CanvasObject {
			name := widget.NewLabel("Connection Name")
			name.TextStyle = fyne.TextStyle{Bold: true}
			detail := widget.NewLabel("detail")
			return container.NewHBox(
				widget.NewIcon(theme.ComputerIcon()),
				container.NewVBox(name, detail),
			)
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			conn := e.conns[id]
			box := item.(*fyne.Container)
			icon := box.Objects[0].(*widget.Icon)
			vbox := box.Objects[1].(*fyne.Container)
			nameLabel := vbox.Objects[0].(*widget.Label)
			detailLabel := vbox.Objects[1].(*widget.Label)

			nameLabel.SetText(conn.Name)
			if conn.Kind == session.KindLocal {
				icon.SetResource(theme.HomeIcon())
				detailLabel.SetText("local shell")
			} else {
				icon.SetResource(theme.ComputerIcon())
				detailLabel.SetText(fmt.Sprintf("%s@%s:%d", conn.Username, conn.Host, conn.Port))
			}
		},
	)

	e.connList.OnSelected = func(id widget.ListItemID) {
		conn := e.conns[id]
		e.selectedConn = &conn
	}

	connPanel := container.NewBorder(connHeader, nil, nil, nil,
		container.NewVScroll(e.connList))

	split := container.NewHSplit(folderPanel, connPanel)
	split.SetOffset(0.3)

	return container.NewStack(split)
}

func (e *ConnectionEditor) showAddFolderDialog() {
	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("Folder name")

	items := []*widget.FormItem{
		widget.NewFormItem("Name", nameEntry),
	}

	d := dialog.NewForm("Add Folder", "Add", "Cancel", items,
		func(confirmed bool) {
			if confirmed && nameEntry.Text != "" {
				e.store.AddFolder(nameEntry.Text)
				e.saveAndRefresh()
			}
		}, e.window)
	d.Resize(fyne.NewSize(300, 150))
	d.Show()
}

// deleteSelectedFolder deletes the currently selected folder
func (e *ConnectionEditor) deleteSelectedFolder() {
	if e.selectedFolder == "" {
		dialog.ShowInformation("No Selection", "Please select a folder to delete.", e.window)
		return
	}

	byFolder := e.store.GetConnectionsByFolder()
	conns := byFolder[e.selectedFolder]

	message := fmt.Sprintf("Delete folder '%s'?", e.selectedFolder)
	if len(conns) > 0 {
		message = fmt.Sprintf("Delete folder '%s' and its %d connections?", e.selectedFolder, len(conns))
	}

	dialog.ShowConfirm("Delete Folder", message,
		func(confirmed bool) {
			if confirmed {
				e.store.RemoveFolder(e.selectedFolder)
				e.selectedFolder = ""
				e.saveAndRefresh()
			}
		}, e.window)
}

// showAddConnectionDialog shows dialog to add a new connection
func (e *ConnectionEditor) showAddConnectionDialog() {
	if e.selectedFolder == "" {
		dialog.ShowInformation("No Folder", "Please select a folder first.", e.window)
		return
	}

	e.showConnectionFormDialog("Add Connection", Connection{}, func(conn Connection) {
		e.store.AddConnection(e.selectedFolder, conn)
		e.saveAndRefresh()
	})
}

// showEditConnectionDialog shows dialog to edit the selected connection
func (e *ConnectionEditor) showEditConnectionDialog() {
	if e.selectedConn == nil {
		dialog.ShowInformation("No Selection", "Please select a connection to edit.", e.window)
		return
	}

	id := e.selectedConn.ID
	e.showConnectionFormDialog("Edit Connection", *e.selectedConn, func(conn Connection) {
		e.store.UpdateConnection(id, conn)
		e.saveAndRefresh()
	})
}

// showConnectionFormDialog shows the connection edit form
func (e *ConnectionEditor) showConnectionFormDialog(title string, conn Connection, onSave func(Connection)) {
	nameEntry := widget.NewEntry()
	nameEntry.SetText(conn.Name)
	nameEntry.SetPlaceHolder("Display name")

	typeSelect := widget.NewSelect([]string{"SSH", "Local Shell"}, nil)
	if conn.Kind == session.KindLocal {
		typeSelect.SetSelected("Local Shell")
	} else {
		typeSelect.SetSelected("SSH")
	}

	hostEntry := widget.NewEntry()
	hostEntry.SetText(conn.Host)
	hostEntry.SetPlaceHolder("192.168.1.1 or hostname")

	portEntry := widget.NewEntry()
	if conn.Port > 0 {
		portEntry.SetText(strconv.Itoa(conn.Port))
	} else {
		portEntry.SetText("22")
	}

	usernameEntry := widget.NewEntry()
	usernameEntry.SetText(conn.Username)
	usernameEntry.SetPlaceHolder("Leave blank to prompt")

	authSelect := widget.NewSelect([]string{"Password", "SSH Key", "SSH Agent"}, nil)
	switch conn.AuthType {
	case "publickey":
		authSelect.SetSelected("SSH Key")
	case "agent":
		authSelect.SetSelected("SSH Agent")
	default:
		authSelect.SetSelected("Password")
	}

	keyPathEntry := widget.NewEntry()
	keyPathEntry.SetText(conn.KeyPath)
	if conn.KeyPath == "" {
		keyPathEntry.SetText("~/.ssh/id_rsa")
	}
	keyPathEntry.Disable()

	keyPassEntry := widget.NewPasswordEntry()
	keyPassEntry.SetText(conn.KeyPassphrase)
	keyPassEntry.Disable()

	shellEntry := widget.NewEntry()
	shellEntry.SetText(conn.Shell)
	shellEntry.SetPlaceHolder("$SHELL")

	authSelect.OnChanged = func(s string) {
		if s == "SSH Key" {
			keyPathEntry.Enable()
			keyPassEntry.Enable()
		} else {
			keyPathEntry.Disable()
			keyPassEntry.Disable()
		}
	}
	if authSelect.Selected == "SSH Key" {
		keyPathEntry.Enable()
		keyPassEntry.Enable()
	}

	sshFields := []*widget.Entry{hostEntry, portEntry, usernameEntry}
	typeSelect.OnChanged = func(s string) {
		if s == "Local Shell" {
			for _, f := range sshFields {
				f.Disable()
			}
			authSelect.Disable()
			keyPathEntry.Disable()
			keyPassEntry.Disable()
			shellEntry.Enable()
		} else {
			for _, f := range sshFields {
				f.Enable()
			}
			authSelect.Enable()
			authSelect.OnChanged(authSelect.Selected)
			shellEntry.Disable()
		}
	}
	typeSelect.OnChanged(typeSelect.Selected)

	items := []*widget.FormItem{
		widget.NewFormItem("Display Name", nameEntry),
		widget.NewFormItem("Type", typeSelect),
		widget.NewFormItem("Host", hostEntry),
		widget.NewFormItem("Port", portEntry),
		widget.NewFormItem("Username", usernameEntry),
		widget.NewFormItem("Auth Type", authSelect),
		widget.NewFormItem("Key Path", keyPathEntry),
		widget.NewFormItem("Key Passphrase", keyPassEntry),
		widget.NewFormItem("Shell", shellEntry),
	}

	d := dialog.NewForm(title, "Save", "Cancel", items,
		func(confirmed bool) {
			if !confirmed {
				return
			}

			newConn := Connection{
				Name:   nameEntry.Text,
				Folder: e.selectedFolder,
			}

			if typeSelect.Selected == "Local Shell" {
				newConn.Kind = session.KindLocal
				newConn.Shell = shellEntry.Text
				if newConn.Name == "" {
					newConn.Name = "Local Shell"
				}
				onSave(newConn)
				return
			}

			if hostEntry.Text == "" {
				dialog.ShowError(fmt.Errorf("host is required"), e.window)
				return
			}

			port := 22
			if p, err := strconv.Atoi(portEntry.Text); err == nil {
				port = p
			}

			newConn.Kind = session.KindSSH
			newConn.Host = hostEntry.Text
			newConn.Port = port
			newConn.Username = usernameEntry.Text

			switch authSelect.Selected {
			case "SSH Key":
				newConn.AuthType = "publickey"
				newConn.KeyPath = keyPathEntry.Text
				newConn.KeyPassphrase = keyPassEntry.Text
			case "SSH Agent":
				newConn.AuthType = "agent"
			default:
				newConn.AuthType = "password"
			}

			// Default display name to user@host if not provided
			if newConn.Name == "" {
				if newConn.Username != "" {
					newConn.Name = fmt.Sprintf("%s@%s", newConn.Username, newConn.Host)
				} else {
					newConn.Name = newConn.Host
				}
			}

			onSave(newConn)
		}, e.window)

	d.Resize(fyne.NewSize(450, 500))
	d.Show()
}

// deleteSelectedConnection deletes the currently selected connection
func (e *ConnectionEditor) deleteSelectedConnection() {
	if e.selectedConn == nil {
		dialog.ShowInformation("No Selection", "Please select a connection to delete.", e.window)
		return
	}

	dialog.ShowConfirm("Delete Connection",
		fmt.Sprintf("Delete connection '%s'?", e.selectedConn.Name),
		func(confirmed bool) {
			if confirmed {
				e.store.RemoveConnection(e.selectedConn.ID)
				e.selectedConn = nil
				e.saveAndRefresh()
			}
		}, e.window)
}

// saveAndRefresh persists the store and repaints both panels
func (e *ConnectionEditor) saveAndRefresh() {
	if err := e.store.Save(); err != nil {
		dialog.ShowError(err, e.window)
		return
	}

	e.refreshData()
	if e.folderList != nil {
		e.folderList.Refresh()
	}
	if e.connList != nil {
		e.connList.Refresh()
	}
	if e.onSave != nil {
		e.onSave()
	}
}
