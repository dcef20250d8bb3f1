package session

import (
	"context"
	"log"
)

// MFAState tracks the per-session challenge round trip:
// Idle -> ChallengeReceived -> Idle (via submit or cancel).
type MFAState int

const (
	MFAIdle MFAState = iota
	MFAChallengeReceived
)

func (s MFAState) String() string {
	switch s {
	case MFAChallengeReceived:
		return "challenge-received"
	default:
		return "idle"
	}
}

// handleChallenge receives every challenge on the global channel and keeps
// only the ones addressed to this session. Only one challenge may be
// outstanding; an overlapping one is an error condition that gets logged and
// dropped, never queued.
func (h *Handle) handleChallenge(ch Challenge) {
	if ch.SessionID != h.id {
		return
	}

	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return
	}
	if h.mfaState == MFAChallengeReceived {
		h.mu.Unlock()
		log.Printf("Session %s: %v, dropping new challenge %q", h.id, ErrChallengeOverlap, ch.Name)
		return
	}
	h.mfaState = MFAChallengeReceived
	challenge := ch
	h.challenge = &challenge
	h.mu.Unlock()

	log.Printf("Session %s: MFA challenge %q with %d prompt(s)", h.id, ch.Name, len(ch.Prompts))

	// Same re-check the output/exit forwarders do: a Detach that landed
	// after the state transition must not surface a prompt for a dead view.
	h.mu.Lock()
	dead := h.detached
	h.mu.Unlock()
	if dead || h.onChallenge == nil {
		return
	}
	h.onChallenge(h, ch)
}

// MFAState returns the current challenge state.
func (h *Handle) MFAState() MFAState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mfaState
}

// PendingChallenge returns the outstanding challenge, or nil.
func (h *Handle) PendingChallenge() *Challenge {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.challenge
}

// SubmitChallengeResponses sends one response per prompt and returns the
// session to the idle state regardless of the backend's acknowledgement; if
// the server rejects the responses, the failure surfaces through the
// ordinary output/exit channels.
func (h *Handle) SubmitChallengeResponses(ctx context.Context, responses []string) error {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return ErrDetached
	}
	if h.mfaState != MFAChallengeReceived {
		h.mu.Unlock()
		return ErrNoChallenge
	}
	h.mfaState = MFAIdle
	h.challenge = nil
	h.mu.Unlock()

	if err := h.coord.gateway.SubmitChallenge(ctx, h.id, responses); err != nil {
		log.Printf("Session %s: challenge response delivery failed: %v", h.id, err)
		return err
	}
	return nil
}

// CancelChallenge abandons the outstanding challenge and returns to idle.
func (h *Handle) CancelChallenge(ctx context.Context) error {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return ErrDetached
	}
	if h.mfaState != MFAChallengeReceived {
		h.mu.Unlock()
		return ErrNoChallenge
	}
	h.mfaState = MFAIdle
	h.challenge = nil
	h.mu.Unlock()

	log.Printf("Session %s: MFA challenge cancelled", h.id)
	if err := h.coord.gateway.CancelChallenge(ctx, h.id); err != nil {
		log.Printf("Session %s: challenge cancel delivery failed: %v", h.id, err)
		return err
	}
	return nil
}
