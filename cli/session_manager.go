// session_manager.go - Session manager for the tabbed terminal app
// Uses Tree widget for hierarchical folder/connection display
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/google/uuid"

	"github.com/TaylorChen/konnect/internal/session"
)

// Tab lifecycle states shown in the tree and tab titles
const (
	tabConnecting = "connecting"
	tabConnected  = "connected"
	tabExited     = "exited"
	tabError      = "error"
)

// SessionManager manages multiple terminal sessions
type SessionManager struct {
	// UI components
	window        fyne.Window
	sessionTree   *widget.Tree
	tabContainer  *container.DocTabs
	mainContainer *fyne.Container
	searchEntry   *widget.Entry

	settings    *SettingsManager
	coordinator *session.Coordinator

	// Connection data
	savedConnections    []Connection
	filteredConnections []Connection
	filterText          string
	activeTabs          map[string]*SessionTab
	tabsMutex           sync.RWMutex

	// Tree data structures
	treeData map[string][]string    // parent -> children mapping
	connByID map[string]*Connection // quick lookup by tree node ID

	// Connection persistence
	store *ConnectionStore

	// Currently selected in tree
	selectedNodeID     string
	selectedConnection *Connection
}

// SessionTab represents an active terminal tab
type SessionTab struct {
	TabID     string
	SessionID string
	Conn      Connection
	View      *TerminalView
	Tab       *container.TabItem

	mu     sync.Mutex
	handle *session.Handle
	state  string
	closed bool
}

func (t *SessionTab) setHandle(h *session.Handle) (alreadyClosed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return true
	}
	t.handle = h
	return false
}

func (t *SessionTab) takeHandle() *session.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	h := t.handle
	t.handle = nil
	return h
}

func (t *SessionTab) setState(state string) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *SessionTab) getState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// NewSessionManager creates a new session manager
func NewSessionManager(window fyne.Window, settings *SettingsManager, coordinator *session.Coordinator) *SessionManager {
	sm := &SessionManager{
		window:      window,
		settings:    settings,
		coordinator: coordinator,
		activeTabs:  make(map[string]*SessionTab),
		treeData:    make(map[string][]string),
		connByID:    make(map[string]*Connection),
	}

	sm.loadConnections()
	sm.buildUI()
	sm.setupKeyboardCapture()
	return sm
}

// loadConnections loads connections from the YAML file
func (sm *SessionManager) loadConnections() {
	sm.store = NewConnectionStore(GetConnectionsPath())

	if err := sm.store.Load(); err != nil {
		log.Printf("Warning: Could not load connections: %v", err)
	}

	sm.savedConnections = sm.store.GetConnections()
	sm.filteredConnections = sm.savedConnections

	sm.rebuildTreeData()
	log.Printf("Loaded %d connections", len(sm.savedConnections))
}

// rebuildTreeData builds the tree structure from filtered connections
func (sm *SessionManager) rebuildTreeData() {
	sm.treeData = make(map[string][]string)
	sm.connByID = make(map[string]*Connection)

	folders := make(map[string][]*Connection)
	for i := range sm.filteredConnections {
		conn := &sm.filteredConnections[i]
		folder := conn.Folder
		if folder == "" {
			folder = "Default"
		}
		folders[folder] = append(folders[folder], conn)
	}

	var folderNames []string
	for name := range folders {
		folderNames = append(folderNames, name)
	}
	sort.Strings(folderNames)

	var rootChildren []string
	for _, name := range folderNames {
		folderID := "folder:" + name
		rootChildren = append(rootChildren, folderID)

		var connIDs []string
		for _, conn := range folders[name] {
			nodeID := "conn:" + conn.ID
			connIDs = append(connIDs, nodeID)
			sm.connByID[nodeID] = conn
		}
		sm.treeData[folderID] = connIDs
	}
	sm.treeData[""] = rootChildren
}

// saveConnections saves connections to the YAML file
func (sm *SessionManager) saveConnections() {
	if sm.store == nil {
		return
	}
	if err := sm.store.Save(); err != nil {
		log.Printf("Error saving connections: %v", err)
	}
}

// refreshConnections reloads connections from store and applies current filter
func (sm *SessionManager) refreshConnections() {
	sm.savedConnections = sm.store.GetConnections()
	sm.applyFilter()
}

// applyFilter filters connections based on current filterText
func (sm *SessionManager) applyFilter() {
	if sm.filterText == "" {
		sm.filteredConnections = sm.savedConnections
	} else {
		query := strings.ToLower(sm.filterText)
		sm.filteredConnections = nil

		for _, conn := range sm.savedConnections {
			searchText := strings.ToLower(fmt.Sprintf("%s %s %s %s",
				conn.Name, conn.Host, conn.Folder, conn.Username))
			if strings.Contains(searchText, query) {
				sm.filteredConnections = append(sm.filteredConnections, conn)
			}
		}
	}

	// Clear selection if selected item is no longer visible
	if sm.selectedConnection != nil {
		found := false
		for _, c := range sm.filteredConnections {
			if c.ID == sm.selectedConnection.ID {
				found = true
				break
			}
		}
		if !found {
			sm.selectedConnection = nil
			sm.selectedNodeID = ""
		}
	}

	sm.rebuildTreeData()

	if sm.sessionTree != nil {
		sm.sessionTree.Refresh()
		if sm.filterText != "" {
			for nodeID := range sm.treeData {
				if strings.HasPrefix(nodeID, "folder:") {
					sm.sessionTree.OpenBranch(nodeID)
				}
			}
		}
	}
}

// setupKeyboardCapture sets up window-level keyboard event forwarding
func (sm *SessionManager) setupKeyboardCapture() {
	sm.window.Canvas().SetOnTypedKey(func(key *fyne.KeyEvent) {
		// Don't forward if search box is focused
		if sm.window.Canvas().Focused() == sm.searchEntry {
			return
		}

		view := sm.getActiveView()
		if view == nil {
			return
		}

		if sm.window.Canvas().Focused() != view {
			sm.window.Canvas().Focus(view)
		}

		view.TypedKey(key)
	})

	sm.window.Canvas().SetOnTypedRune(func(r rune) {
		if sm.window.Canvas().Focused() == sm.searchEntry {
			return
		}

		view := sm.getActiveView()
		if view == nil {
			return
		}

		if sm.window.Canvas().Focused() != view {
			sm.window.Canvas().Focus(view)
		}

		view.TypedRune(r)
	})
}

// getActiveView returns the terminal view in the currently selected tab
func (sm *SessionManager) getActiveView() *TerminalView {
	selected := sm.tabContainer.Selected()
	if selected == nil {
		return nil
	}

	sm.tabsMutex.RLock()
	defer sm.tabsMutex.RUnlock()

	for _, sessionTab := range sm.activeTabs {
		if sessionTab.Tab == selected {
			return sessionTab.View
		}
	}

	return nil
}

// ActiveTabCount returns the number of open terminal tabs
func (sm *SessionManager) ActiveTabCount() int {
	sm.tabsMutex.RLock()
	defer sm.tabsMutex.RUnlock()
	return len(sm.activeTabs)
}

// buildUI constructs the session manager interface
func (sm *SessionManager) buildUI() {
	sm.sessionTree = sm.buildSessionTree()

	sm.tabContainer = container.NewDocTabs()
	sm.tabContainer.CloseIntercept = sm.handleTabClose

	sidebar := container.NewBorder(
		container.NewVBox(
			sm.buildSidebarHeader(),
			sm.buildSearchBox(),
		),
		sm.buildSidebarFooter(),
		nil, nil,
		container.NewVScroll(sm.sessionTree),
	)

	split := container.NewHSplit(sidebar, sm.tabContainer)
	split.SetOffset(0.2)

	sm.mainContainer = container.NewStack(split)
}

// buildSearchBox creates the search/filter entry
func (sm *SessionManager) buildSearchBox() fyne.CanvasObject {
	sm.searchEntry = widget.NewEntry()
	sm.searchEntry.SetPlaceHolder("Filter connections...")

	sm.searchEntry.OnChanged = func(text string) {
		sm.filterText = text
		sm.applyFilter()
	}

	clearBtn := widget.NewButtonWithIcon("", theme.CancelIcon(), func() {
		sm.searchEntry.SetText("")
		sm.filterText = ""
		sm.applyFilter()
		sm.window.Canvas().Focus(sm.searchEntry)
	})
	clearBtn.Importance = widget.LowImportance

	return container.NewBorder(nil, nil, nil, clearBtn, sm.searchEntry)
}

// buildSessionTree creates the tree widget for connections
func (sm *SessionManager) buildSessionTree() *widget.Tree {
	tree := widget.NewTree(
		func(uid widget.TreeNodeID) []widget.TreeNodeID {
			return sm.treeData[uid]
		},

		func(uid widget.TreeNodeID) bool {
			return uid == "" || strings.HasPrefix(uid, "folder:")
		},

		func(branch bool) fyne.CanvasObject {
			if branch {
				icon := widget.NewIcon(theme.FolderIcon())
				name := widget.NewLabel("Folder Name")
				name.TextStyle = fyne.TextStyle{Bold: true}
				count := widget.NewLabel("(0)")
				count.TextStyle = fyne.TextStyle{Italic: true}

				return container.NewHBox(icon, name, count)
			}

			icon := widget.NewIcon(theme.ComputerIcon())
			name := widget.NewLabel("Connection Name")
			name.TextStyle = fyne.TextStyle{Bold: true}
			host := widget.NewLabel("host:port")
			status := widget.NewLabel("")

			return container.NewHBox(
				icon,
				container.NewVBox(name, host),
				status,
			)
		},

		func(uid widget.TreeNodeID, branch bool, o fyne.CanvasObject) {
			if branch {
				box := o.(*fyne.Container)
				icon := box.Objects[0].(*widget.Icon)
				nameLabel := box.Objects[1].(*widget.Label)
				countLabel := box.Objects[2].(*widget.Label)

				if uid == "" {
					nameLabel.SetText("Connections")
					countLabel.SetText("")
					icon.SetResource(theme.FolderIcon())
				} else {
					nameLabel.SetText(strings.TrimPrefix(uid, "folder:"))
					countLabel.SetText(fmt.Sprintf("(%d)", len(sm.treeData[uid])))

					if sm.sessionTree != nil && sm.sessionTree.IsBranchOpen(uid) {
						icon.SetResource(theme.FolderOpenIcon())
					} else {
						icon.SetResource(theme.FolderIcon())
					}
				}
				return
			}

			conn := sm.connByID[uid]
			if conn == nil {
				return
			}

			box := o.(*fyne.Container)
			icon := box.Objects[0].(*widget.Icon)
			vbox := box.Objects[1].(*fyne.Container)
			nameLabel := vbox.Objects[0].(*widget.Label)
			hostLabel := vbox.Objects[1].(*widget.Label)
			statusLabel := box.Objects[2].(*widget.Label)

			nameLabel.SetText(conn.Name)
			if conn.Kind == session.KindLocal {
				icon.SetResource(theme.HomeIcon())
				hostLabel.SetText("local shell")
			} else {
				icon.SetResource(theme.ComputerIcon())
				hostLabel.SetText(fmt.Sprintf("%s:%d", conn.Host, conn.Port))
			}

			// Show connection status
			sm.tabsMutex.RLock()
			statusText := ""
			for _, tab := range sm.activeTabs {
				if tab.Conn.ID == conn.ID {
					switch tab.getState() {
					case tabConnected:
						statusText = "●"
					case tabConnecting:
						statusText = "○"
					case tabError:
						statusText = "✗"
					}
					break
				}
			}
			sm.tabsMutex.RUnlock()
			statusLabel.SetText(statusText)
		},
	)

	tree.OnSelected = func(uid widget.TreeNodeID) {
		sm.selectedNodeID = uid

		if strings.HasPrefix(uid, "conn:") {
			sm.selectedConnection = sm.connByID[uid]
			if sm.selectedConnection != nil {
				log.Printf("Selected connection: %s", sm.selectedConnection.Name)
			}
		} else {
			sm.selectedConnection = nil
		}
	}

	tree.OnBranchOpened = func(uid widget.TreeNodeID) {
		tree.Refresh()
	}
	tree.OnBranchClosed = func(uid widget.TreeNodeID) {
		tree.Refresh()
	}

	for nodeID := range sm.treeData {
		if strings.HasPrefix(nodeID, "folder:") {
			tree.OpenBranch(nodeID)
		}
	}

	return tree
}

// buildSidebarHeader creates the sidebar header with title and buttons
func (sm *SessionManager) buildSidebarHeader() fyne.CanvasObject {
	title := widget.NewLabel("Connections")
	title.TextStyle = fyne.TextStyle{Bold: true}

	shellBtn := widget.NewButtonWithIcon("", theme.HomeIcon(), func() {
		sm.openLocalShell()
	})
	shellBtn.Importance = widget.LowImportance

	quickBtn := widget.NewButtonWithIcon("", theme.MediaFastForwardIcon(), func() {
		sm.showQuickConnectDialog()
	})
	quickBtn.Importance = widget.LowImportance

	addBtn := widget.NewButtonWithIcon("", theme.ContentAddIcon(), func() {
		sm.showAddConnectionDialog()
	})
	addBtn.Importance = widget.LowImportance

	editBtn := widget.NewButtonWithIcon("", theme.DocumentCreateIcon(), func() {
		NewConnectionEditor(sm.window, sm.store, sm.refreshConnections).Show()
	})
	editBtn.Importance = widget.LowImportance

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		sm.settings.ShowSettingsDialog(sm.window)
	})
	settingsBtn.Importance = widget.LowImportance

	buttons := container.NewHBox(shellBtn, quickBtn, addBtn, editBtn, settingsBtn)

	return container.NewBorder(nil, nil, title, buttons)
}

// buildSidebarFooter creates the connect button
func (sm *SessionManager) buildSidebarFooter() fyne.CanvasObject {
	connectBtn := widget.NewButton("Connect", func() {
		if sm.selectedConnection != nil {
			sm.openConnection(*sm.selectedConnection)
		}
	})
	connectBtn.Importance = widget.HighImportance

	return container.NewPadded(connectBtn)
}

// GetContainer returns the main container for embedding in the window
func (sm *SessionManager) GetContainer() *fyne.Container {
	return sm.mainContainer
}

// getDefaultKeyPath returns the default SSH key path from settings
func (sm *SessionManager) getDefaultKeyPath() string {
	if sm.settings.Get().DefaultKeyPath != "" {
		return sm.settings.Get().DefaultKeyPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "~/.ssh/id_rsa"
	}
	return filepath.Join(homeDir, ".ssh", "id_rsa")
}

// openLocalShell opens a tab running the default local shell
func (sm *SessionManager) openLocalShell() {
	sm.openConnection(Connection{
		ID:    uuid.New().String(),
		Name:  "Local Shell",
		Kind:  session.KindLocal,
		Shell: sm.settings.Get().DefaultShell,
	})
}

// openConnection resolves missing credentials and opens a terminal tab
func (sm *SessionManager) openConnection(conn Connection) {
	if conn.Kind == session.KindLocal {
		sm.openTab(conn)
		return
	}

	log.Printf("Connecting to %s (%s@%s:%d) via %s",
		conn.Name, conn.Username, conn.Host, conn.Port, conn.AuthType)

	if conn.Username == "" {
		sm.promptCredentialsAndConnect(conn)
		return
	}

	if conn.AuthType == "password" && conn.Password == "" {
		sm.promptPasswordAndConnect(conn)
		return
	}

	sm.openTab(conn)
}

// promptCredentialsAndConnect shows a dialog for both username and password
func (sm *SessionManager) promptCredentialsAndConnect(conn Connection) {
	userEntry := widget.NewEntry()
	userEntry.SetPlaceHolder("username")
	if sm.settings.Get().DefaultUsername != "" {
		userEntry.SetText(sm.settings.Get().DefaultUsername)
	}

	passEntry := widget.NewPasswordEntry()
	passEntry.SetPlaceHolder("password")

	items := []*widget.FormItem{
		widget.NewFormItem("Username", userEntry),
		widget.NewFormItem("Password", passEntry),
	}

	d := dialog.NewForm(
		fmt.Sprintf("Connect to %s", conn.Host),
		"Connect", "Cancel",
		items,
		func(confirmed bool) {
			if confirmed && userEntry.Text != "" {
				conn.Username = userEntry.Text
				conn.Password = passEntry.Text
				sm.openTab(conn)
			}
		},
		sm.window,
	)
	d.Resize(fyne.NewSize(350, 200))
	d.Show()
	sm.window.Canvas().Focus(userEntry)
}

// promptPasswordAndConnect shows a password dialog then connects
func (sm *SessionManager) promptPasswordAndConnect(conn Connection) {
	entry := widget.NewPasswordEntry()
	entry.SetPlaceHolder("Enter password")

	items := []*widget.FormItem{
		widget.NewFormItem("Password", entry),
	}

	d := dialog.NewForm(
		fmt.Sprintf("Connect to %s@%s", conn.Username, conn.Host),
		"Connect", "Cancel",
		items,
		func(confirmed bool) {
			if confirmed && entry.Text != "" {
				conn.Password = entry.Text
				sm.openTab(conn)
			} else if confirmed {
				dialog.ShowError(fmt.Errorf("password is required"), sm.window)
			}
		},
		sm.window,
	)
	d.Resize(fyne.NewSize(400, 150))
	d.Show()
	sm.window.Canvas().Focus(entry)
}

// openTab creates a terminal tab and attaches it to the session. Opening
// the same saved connection twice attaches a second view to the same
// backend session.
func (sm *SessionManager) openTab(conn Connection) {
	tabID := uuid.New().String()
	sessionID := conn.ID

	view := NewTerminalView(sm.settings.Get().FontSize)

	tabName := conn.Name
	sm.tabsMutex.RLock()
	duplicateCount := 0
	for _, tab := range sm.activeTabs {
		if tab.SessionID == sessionID {
			duplicateCount++
		}
	}
	sm.tabsMutex.RUnlock()
	if duplicateCount > 0 {
		tabName = fmt.Sprintf("%s (%d)", conn.Name, duplicateCount+1)
	}

	tabItem := container.NewTabItem(tabName, view)

	sessionTab := &SessionTab{
		TabID:     tabID,
		SessionID: sessionID,
		Conn:      conn,
		View:      view,
		Tab:       tabItem,
		state:     tabConnecting,
	}

	sm.tabsMutex.Lock()
	sm.activeTabs[tabID] = sessionTab
	sm.tabsMutex.Unlock()

	sm.tabContainer.Append(tabItem)
	sm.tabContainer.Select(tabItem)
	tabItem.Text = fmt.Sprintf("%s (connecting...)", tabName)
	sm.tabContainer.Refresh()
	sm.sessionTree.Refresh()

	cfg := session.AttachConfig{
		OnOutput: view.AppendOutput,
		OnExit: func() {
			sessionTab.setState(tabExited)
			view.ShowExited()
			fyne.Do(func() {
				tabItem.Text = fmt.Sprintf("%s (exited)", tabName)
				sm.tabContainer.Refresh()
				sm.sessionTree.Refresh()
			})
		},
		OnChallenge: func(h *session.Handle, ch session.Challenge) {
			fyne.Do(func() {
				showChallengeDialog(sm.window, h, ch)
			})
		},
	}

	go func() {
		handle, err := sm.coordinator.Attach(context.Background(), sessionID, conn.Params(0, 0), cfg)
		if err != nil {
			sessionTab.setState(tabError)
			log.Printf("Failed to connect %s [%s]: %v", conn.Name, tabID, err)
			fyne.Do(func() {
				tabItem.Text = fmt.Sprintf("%s (error)", tabName)
				sm.tabContainer.Refresh()
				sm.sessionTree.Refresh()
				dialog.ShowError(err, sm.window)
			})
			return
		}

		if sessionTab.setHandle(handle) {
			// Tab was closed while connecting
			handle.Detach()
			return
		}
		view.SetHandle(handle)
		sessionTab.setState(tabConnected)

		fyne.Do(func() {
			tabItem.Text = tabName
			sm.tabContainer.Refresh()
			sm.sessionTree.Refresh()
			sm.window.Canvas().Focus(view)
		})
	}()
}

// handleTabClose detaches the tab's view; the backend session survives a
// short grace window in case the same connection is reopened immediately.
func (sm *SessionManager) handleTabClose(tab *container.TabItem) {
	sm.tabsMutex.Lock()
	var sessionTab *SessionTab
	var tabID string
	for id, st := range sm.activeTabs {
		if st.Tab == tab {
			sessionTab = st
			tabID = id
			break
		}
	}
	sm.tabsMutex.Unlock()

	if sessionTab == nil {
		sm.tabContainer.Remove(tab)
		return
	}

	removeTab := func() {
		if h := sessionTab.takeHandle(); h != nil {
			h.Detach()
		}

		sm.tabsMutex.Lock()
		delete(sm.activeTabs, tabID)
		sm.tabsMutex.Unlock()

		sm.tabContainer.Remove(tab)
		sm.sessionTree.Refresh()
	}

	if sessionTab.getState() != tabConnected {
		removeTab()
		return
	}

	dialog.ShowConfirm(
		"Close Session",
		fmt.Sprintf("Close session '%s'?", sessionTab.Conn.Name),
		func(confirmed bool) {
			if confirmed {
				removeTab()
			}
		},
		sm.window,
	)
}

// showQuickConnectDialog shows a dialog for quick ad-hoc connections
func (sm *SessionManager) showQuickConnectDialog() {
	hostEntry := widget.NewEntry()
	hostEntry.SetPlaceHolder("192.168.1.1 or hostname")

	portEntry := widget.NewEntry()
	portEntry.SetText(fmt.Sprintf("%d", sm.settings.Get().DefaultPort))

	userEntry := widget.NewEntry()
	userEntry.SetPlaceHolder("admin")
	userEntry.SetText(sm.settings.Get().DefaultUsername)

	authSelect := widget.NewSelect([]string{"Password", "SSH Key", "SSH Agent"}, nil)
	authSelect.SetSelected("Password")

	passEntry := widget.NewPasswordEntry()
	passEntry.SetPlaceHolder("Enter password")

	keyPathEntry := widget.NewEntry()
	keyPathEntry.SetText(sm.getDefaultKeyPath())
	keyPathEntry.Disable()

	keyPassEntry := widget.NewPasswordEntry()
	keyPassEntry.SetPlaceHolder("Key passphrase (if encrypted)")
	keyPassEntry.Disable()

	authSelect.OnChanged = func(selected string) {
		switch selected {
		case "SSH Key":
			passEntry.Disable()
			keyPathEntry.Enable()
			keyPassEntry.Enable()
		case "SSH Agent":
			passEntry.Disable()
			keyPathEntry.Disable()
			keyPassEntry.Disable()
		default:
			passEntry.Enable()
			keyPathEntry.Disable()
			keyPassEntry.Disable()
		}
	}

	items := []*widget.FormItem{
		widget.NewFormItem("Host", hostEntry),
		widget.NewFormItem("Port", portEntry),
		widget.NewFormItem("Username", userEntry),
		widget.NewFormItem("Auth Type", authSelect),
		widget.NewFormItem("Password", passEntry),
		widget.NewFormItem("Key Path", keyPathEntry),
		widget.NewFormItem("Key Passphrase", keyPassEntry),
	}

	d := dialog.NewForm("Quick Connect", "Connect", "Cancel", items,
		func(confirmed bool) {
			if !confirmed {
				return
			}

			if hostEntry.Text == "" {
				dialog.ShowError(fmt.Errorf("host is required"), sm.window)
				return
			}
			if userEntry.Text == "" {
				dialog.ShowError(fmt.Errorf("username is required"), sm.window)
				return
			}

			port := sm.settings.Get().DefaultPort
			fmt.Sscanf(portEntry.Text, "%d", &port)

			conn := Connection{
				ID:       uuid.New().String(),
				Name:     fmt.Sprintf("%s@%s", userEntry.Text, hostEntry.Text),
				Kind:     session.KindSSH,
				Host:     hostEntry.Text,
				Port:     port,
				Username: userEntry.Text,
				Folder:   "Quick Connect",
			}

			switch authSelect.Selected {
			case "SSH Key":
				conn.AuthType = "publickey"
				conn.KeyPath = keyPathEntry.Text
				conn.KeyPassphrase = keyPassEntry.Text
			case "SSH Agent":
				conn.AuthType = "agent"
			default:
				conn.AuthType = "password"
				conn.Password = passEntry.Text
			}

			sm.openConnection(conn)
		},
		sm.window,
	)

	d.Resize(fyne.NewSize(450, 350))
	d.Show()
	sm.window.Canvas().Focus(hostEntry)
}

// showAddConnectionDialog shows the dialog for adding a new saved connection
func (sm *SessionManager) showAddConnectionDialog() {
	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("My Server")

	typeSelect := widget.NewSelect([]string{"SSH", "Local Shell"}, nil)
	typeSelect.SetSelected("SSH")

	hostEntry := widget.NewEntry()
	hostEntry.SetPlaceHolder("192.168.1.1")

	portEntry := widget.NewEntry()
	portEntry.SetText(fmt.Sprintf("%d", sm.settings.Get().DefaultPort))

	userEntry := widget.NewEntry()
	userEntry.SetPlaceHolder("admin")

	authSelect := widget.NewSelect([]string{"Password", "SSH Key", "SSH Agent"}, nil)
	authSelect.SetSelected("Password")

	keyPathEntry := widget.NewEntry()
	keyPathEntry.SetText(sm.getDefaultKeyPath())
	keyPathEntry.Disable()

	keyPassEntry := widget.NewPasswordEntry()
	keyPassEntry.SetPlaceHolder("Key passphrase (if encrypted)")
	keyPassEntry.Disable()

	shellEntry := widget.NewEntry()
	shellEntry.SetPlaceHolder("$SHELL")
	shellEntry.Disable()

	authSelect.OnChanged = func(s string) {
		if s == "SSH Key" {
			keyPathEntry.Enable()
			keyPassEntry.Enable()
		} else {
			keyPathEntry.Disable()
			keyPassEntry.Disable()
		}
	}

	typeSelect.OnChanged = func(s string) {
		if s == "Local Shell" {
			hostEntry.Disable()
			portEntry.Disable()
			userEntry.Disable()
			authSelect.Disable()
			keyPathEntry.Disable()
			keyPassEntry.Disable()
			shellEntry.Enable()
		} else {
			hostEntry.Enable()
			portEntry.Enable()
			userEntry.Enable()
			authSelect.Enable()
			shellEntry.Disable()
			authSelect.OnChanged(authSelect.Selected)
		}
	}

	folderEntry := widget.NewEntry()
	folderEntry.SetPlaceHolder("Servers")

	items := []*widget.FormItem{
		widget.NewFormItem("Name", nameEntry),
		widget.NewFormItem("Type", typeSelect),
		widget.NewFormItem("Host", hostEntry),
		widget.NewFormItem("Port", portEntry),
		widget.NewFormItem("Username", userEntry),
		widget.NewFormItem("Auth Type", authSelect),
		widget.NewFormItem("Key Path", keyPathEntry),
		widget.NewFormItem("Key Passphrase", keyPassEntry),
		widget.NewFormItem("Shell", shellEntry),
		widget.NewFormItem("Folder", folderEntry),
	}

	d := dialog.NewForm("Add Connection", "Add", "Cancel", items,
		func(confirmed bool) {
			if !confirmed || nameEntry.Text == "" {
				return
			}

			conn := Connection{
				Name:   nameEntry.Text,
				Folder: folderEntry.Text,
			}

			if typeSelect.Selected == "Local Shell" {
				conn.Kind = session.KindLocal
				conn.Shell = shellEntry.Text
			} else {
				if hostEntry.Text == "" {
					dialog.ShowError(fmt.Errorf("host is required"), sm.window)
					return
				}
				conn.Kind = session.KindSSH
				conn.Host = hostEntry.Text
				conn.Port = sm.settings.Get().DefaultPort
				fmt.Sscanf(portEntry.Text, "%d", &conn.Port)
				conn.Username = userEntry.Text

				switch authSelect.Selected {
				case "SSH Key":
					conn.AuthType = "publickey"
					conn.KeyPath = keyPathEntry.Text
					conn.KeyPassphrase = keyPassEntry.Text
				case "SSH Agent":
					conn.AuthType = "agent"
				default:
					conn.AuthType = "password"
				}
			}

			folderName := folderEntry.Text
			if folderName == "" {
				folderName = "Default"
			}
			sm.store.AddConnection(folderName, conn)
			sm.saveConnections()
			sm.refreshConnections()

			log.Printf("Added new connection: %s", conn.Name)
		}, sm.window)

	d.Resize(fyne.NewSize(450, 500))
	d.Show()
}

// DisconnectAll detaches every open tab. Called on app exit; the backend
// sessions are torn down by the backend manager's shutdown.
func (sm *SessionManager) DisconnectAll() {
	sm.tabsMutex.Lock()
	tabs := make([]*SessionTab, 0, len(sm.activeTabs))
	for _, tab := range sm.activeTabs {
		tabs = append(tabs, tab)
	}
	sm.activeTabs = make(map[string]*SessionTab)
	sm.tabsMutex.Unlock()

	for _, tab := range tabs {
		if h := tab.takeHandle(); h != nil {
			h.Detach()
		}
	}

	log.Printf("Detached %d session tab(s)", len(tabs))
}
