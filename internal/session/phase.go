package session

import "sync"

// Phase gates what the session currently accepts.
type Phase string

const (
	PhaseReady               Phase = "ready"
	PhaseReceivingAudio      Phase = "receiving_audio"
	PhaseProcessingUtterance Phase = "processing_utterance"
	PhaseSendingResponse     Phase = "sending_response"
)

// PhaseState is the small state machine gating audio acceptance:
// Ready → ReceivingAudio → ProcessingUtterance → SendingResponse → Ready.
// Each transition fires only from its expected predecessor; calls from any
// other phase are silent no-ops, which makes duplicate signals idempotent.
type PhaseState struct {
	mu    sync.Mutex
	phase Phase
}

// NewPhaseState starts in Ready.
func NewPhaseState() *PhaseState {
	return &PhaseState{phase: PhaseReady}
}

// Current returns the current phase.
func (p *PhaseState) Current() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// StartReceiving fires on the first audio chunk of an utterance.
func (p *PhaseState) StartReceiving() bool {
	return p.transition(PhaseReady, PhaseReceivingAudio)
}

// BeginProcessing fires when VAD timeout or the complete signal ends
// audio acceptance.
func (p *PhaseState) BeginProcessing() bool {
	return p.transition(PhaseReceivingAudio, PhaseProcessingUtterance)
}

// BeginResponding fires when the response starts streaming.
func (p *PhaseState) BeginResponding() bool {
	return p.transition(PhaseProcessingUtterance, PhaseSendingResponse)
}

// Reset returns to Ready once the response cycle finishes.
func (p *PhaseState) Reset() bool {
	return p.transition(PhaseSendingResponse, PhaseReady)
}

func (p *PhaseState) transition(from, to Phase) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != from {
		return false
	}
	p.phase = to
	return true
}
