// Package signaling implements the JSON message envelope exchanged with the
// out-of-band signaling server named as an external collaborator in
// spec.md §1/§6, transported over a websocket. Grounded in the teacher's
// internal/signaling package (Client/Session's Listen/Shutdown and
// Send/ReceiveMessage shape), adapted from the teacher's MQTT transport to
// gorilla/websocket per SPEC_FULL.md §6 — the transport the rest of the
// retrieved pack reaches for, and already present in the teacher's own
// go.mod.
package signaling

// Type enumerates the signaling message types consumed and emitted by this
// core, per spec.md §6.
type Type string

const (
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
	TypeHangup    Type = "hangup"
)

// Message is the opaque JSON-like envelope spec.md §6 describes, forwarded
// verbatim by the signaling server between the two peers of a call.
type Message struct {
	Type Type `json:"type"`

	CallID  string   `json:"call_id"`
	UserIDs []string `json:"user_ids,omitempty"`

	// SDP carries the full offer/answer session description for
	// Type == TypeOffer/TypeAnswer.
	SDP string `json:"sdp,omitempty"`

	// Candidate fields, for Type == TypeCandidate.
	Candidate  string `json:"candidate,omitempty"`
	Mid        string `json:"mid,omitempty"`
	MLineIndex int    `json:"mline_index,omitempty"`
}

// NewOfferMessage builds the `local_offer(sdp)` message spec.md §6 requires
// this core to emit once it has constructed its SDP offer.
func NewOfferMessage(callID string, userIDs []string, sdp string) Message {
	return Message{Type: TypeOffer, CallID: callID, UserIDs: userIDs, SDP: sdp}
}

// NewAnswerMessage builds the `local_answer(sdp)` message.
func NewAnswerMessage(callID string, sdp string) Message {
	return Message{Type: TypeAnswer, CallID: callID, SDP: sdp}
}

// NewCandidateMessage builds the `local_ice_candidate(...)` message.
func NewCandidateMessage(callID, candidate, mid string, mlineIndex int) Message {
	return Message{Type: TypeCandidate, CallID: callID, Candidate: candidate, Mid: mid, MLineIndex: mlineIndex}
}

// NewHangupMessage builds a hangup notification.
func NewHangupMessage(callID string) Message {
	return Message{Type: TypeHangup, CallID: callID}
}
