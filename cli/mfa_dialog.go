// mfa_dialog.go - Keyboard-interactive authentication prompt dialog
package main

import (
	"context"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/TaylorChen/konnect/internal/session"
)

// showChallengeDialog collects responses for a pending authentication
// challenge and submits them through the handle. Cancelling the dialog
// abandons the authentication attempt.
func showChallengeDialog(window fyne.Window, h *session.Handle, ch session.Challenge) {
	title := ch.Name
	if title == "" {
		title = "Authentication Required"
	}

	entries := make([]*widget.Entry, len(ch.Prompts))
	items := make([]*widget.FormItem, 0, len(ch.Prompts)+1)

	if ch.Instructions != "" {
		instructions := widget.NewLabel(ch.Instructions)
		instructions.Wrapping = fyne.TextWrapWord
		items = append(items, widget.NewFormItem("", instructions))
	}

	for i, prompt := range ch.Prompts {
		var entry *widget.Entry
		if prompt.Echo {
			entry = widget.NewEntry()
		} else {
			entry = widget.NewPasswordEntry()
		}
		entries[i] = entry
		items = append(items, widget.NewFormItem(prompt.Text, entry))
	}

	d := dialog.NewForm(title, "Submit", "Cancel", items,
		func(confirmed bool) {
			go func() {
				if !confirmed {
					if err := h.CancelChallenge(context.Background()); err != nil {
						log.Printf("MFA: cancel for %s: %v", h.ID(), err)
					}
					return
				}

				responses := make([]string, len(entries))
				for i, entry := range entries {
					responses[i] = entry.Text
				}
				if err := h.SubmitChallengeResponses(context.Background(), responses); err != nil {
					log.Printf("MFA: submit for %s: %v", h.ID(), err)
				}
			}()
		},
		window,
	)
	d.Resize(fyne.NewSize(420, float32(160+60*len(ch.Prompts))))
	d.Show()

	if len(entries) > 0 {
		window.Canvas().Focus(entries[0])
	}
}
