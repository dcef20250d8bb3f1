package main

import (
	"fmt"
	"log"
	"runtime"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"

	"github.com/TaylorChen/konnect/internal/backend"
	"github.com/TaylorChen/konnect/internal/session"
)

func main() {
	log.Printf("Starting Konnect on %s", runtime.GOOS)

	settings := NewSettingsManager()

	myApp := app.New()
	myApp.Settings().SetTheme(NewNativeTheme(settings.Get().DarkTheme))

	myWindow := myApp.NewWindow("Konnect")
	myWindow.Resize(fyne.NewSize(
		float32(settings.Get().WindowWidth),
		float32(settings.Get().WindowHeight),
	))

	// Session plumbing: events flow from backend drivers through the bus to
	// attached views; the coordinator owns backend lifetime.
	bus := session.NewBus()
	manager := backend.NewManager(bus)
	coordinator := session.NewCoordinator(manager, bus,
		session.WithGracePeriod(time.Duration(settings.Get().TeardownGraceMs)*time.Millisecond),
		session.WithResizeDebounce(time.Duration(settings.Get().ResizeDebounceMs)*time.Millisecond),
	)

	sessionManager := NewSessionManager(myWindow, settings, coordinator)
	myWindow.SetContent(sessionManager.GetContainer())

	quit := func() {
		if settings.Get().RememberWindowSize {
			size := myWindow.Canvas().Size()
			settings.Get().WindowWidth = int(size.Width)
			settings.Get().WindowHeight = int(size.Height)
			if err := settings.Save(); err != nil {
				log.Printf("Could not save window size: %v", err)
			}
		}

		sessionManager.DisconnectAll()
		manager.Shutdown()
		myApp.Quit()
	}

	myWindow.SetCloseIntercept(func() {
		activeCount := sessionManager.ActiveTabCount()
		if activeCount == 0 {
			quit()
			return
		}

		dialog.ShowConfirm(
			"Close Konnect",
			fmt.Sprintf("You have %d active session(s).\n\nClose anyway?", activeCount),
			func(confirmed bool) {
				if confirmed {
					quit()
				}
			},
			myWindow,
		)
	})

	log.Printf("Starting session manager interface...")
	myWindow.ShowAndRun()
}
