package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures every dispatched callback for assertions.
type recordingHandler struct {
	offers     []Message
	answers    []Message
	candidates []Message
	hangups    []string
}

func (h *recordingHandler) HandleRemoteOffer(callID, sdp string) {
	h.offers = append(h.offers, Message{CallID: callID, SDP: sdp})
}
func (h *recordingHandler) HandleRemoteAnswer(callID, sdp string) {
	h.answers = append(h.answers, Message{CallID: callID, SDP: sdp})
}
func (h *recordingHandler) HandleRemoteCandidate(callID, candidate, mid string, mlineIndex int) {
	h.candidates = append(h.candidates, Message{CallID: callID, Candidate: candidate, Mid: mid, MLineIndex: mlineIndex})
}
func (h *recordingHandler) HandleHangup(callID string) {
	h.hangups = append(h.hangups, callID)
}

// newEchoServer upgrades every connection and hands the server side to the
// test through serverConn, returning the test's client URL.
func newEchoServer(t *testing.T) (url string, serverConn chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConn = make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConn <- conn
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", serverConn
}

func TestClientSendAndListen(t *testing.T) {
	url, serverConns := newEchoServer(t)

	client, err := Dial(url)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConns
	defer server.Close()

	handler := &recordingHandler{}
	done := make(chan error, 1)
	go func() { done <- client.Listen(handler) }()

	require.NoError(t, server.WriteJSON(NewOfferMessage("call-1", []string{"alice", "bob"}, "v=0...")))
	require.NoError(t, server.WriteJSON(NewAnswerMessage("call-1", "v=0 answer")))
	require.NoError(t, server.WriteJSON(NewCandidateMessage("call-1", "candidate:1 ...", "0", 0)))
	require.NoError(t, server.WriteJSON(NewHangupMessage("call-1")))

	require.Eventually(t, func() bool {
		return len(handler.offers) == 1 && len(handler.answers) == 1 &&
			len(handler.candidates) == 1 && len(handler.hangups) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, "v=0...", handler.offers[0].SDP)
	require.Equal(t, "v=0 answer", handler.answers[0].SDP)
	require.Equal(t, "candidate:1 ...", handler.candidates[0].Candidate)
	require.Equal(t, "call-1", handler.hangups[0])
}

func TestClientSendEncodesJSON(t *testing.T) {
	url, serverConns := newEchoServer(t)

	client, err := Dial(url)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConns
	defer server.Close()

	require.NoError(t, client.Send(NewOfferMessage("call-2", nil, "sdp-body")))

	var msg Message
	require.NoError(t, server.ReadJSON(&msg))
	require.Equal(t, TypeOffer, msg.Type)
	require.Equal(t, "call-2", msg.CallID)
	require.Equal(t, "sdp-body", msg.SDP)
}
