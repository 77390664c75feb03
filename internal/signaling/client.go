package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lanikai/rtcore/internal/rtclog"
)

var logger = rtclog.New("signaling")

// Handler receives decoded remote signaling messages, dispatched in the
// order Listen reads them off the wire. This is exactly the consumption
// side spec.md §6 names: set_remote_offer, set_remote_answer,
// add_remote_ice_candidate.
type Handler interface {
	HandleRemoteOffer(callID, sdp string)
	HandleRemoteAnswer(callID, sdp string)
	HandleRemoteCandidate(callID, candidate, mid string, mlineIndex int)
	HandleHangup(callID string)
}

// Client is a websocket-transported signaling connection. A single Client
// both sends local_offer/local_answer/local_ice_candidate messages and,
// via Listen, dispatches incoming ones to a Handler.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla/websocket forbids concurrent writers
}

// Dial connects to the signaling server at url (typically ws:// or wss://).
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("signaling: dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Send encodes msg as JSON and writes it as a single text frame.
func (c *Client) Send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Listen reads signaling messages until the connection closes or an
// unrecoverable error occurs, dispatching each to handler. It blocks, so
// callers typically run it in its own goroutine.
func (c *Client) Listen(handler Handler) error {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("signaling: read: %w", err)
		}

		switch msg.Type {
		case TypeOffer:
			handler.HandleRemoteOffer(msg.CallID, msg.SDP)
		case TypeAnswer:
			handler.HandleRemoteAnswer(msg.CallID, msg.SDP)
		case TypeCandidate:
			handler.HandleRemoteCandidate(msg.CallID, msg.Candidate, msg.Mid, msg.MLineIndex)
		case TypeHangup:
			handler.HandleHangup(msg.CallID)
		default:
			logger.Warn("signaling: unrecognized message type %q", msg.Type)
		}
	}
}

// Close closes the underlying websocket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// MarshalMessage is exposed for transports other than Client (e.g. tests
// that exercise the JSON shape directly without a live websocket).
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
