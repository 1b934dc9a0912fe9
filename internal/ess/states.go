package ess

// State is the ESS session state machine of spec §4.5.5. Each attempt of
// the search retry loop walks Idle -> SessionCreating -> MessageSending ->
// Streaming -> {AnswerReady | Empty | TransportError}; Empty and
// TransportError re-enter SessionCreating on the next attempt. A single
// attempt never reuses a session.
type State string

const (
	StateIdle           State = "idle"
	StateSessionCreating State = "session_creating"
	StateMessageSending  State = "message_sending"
	StateStreaming       State = "streaming"
	StateAnswerReady     State = "answer_ready"
	StateEmpty           State = "empty"
	StateTransportError  State = "transport_error"
)
