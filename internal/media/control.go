package media

import (
	"fmt"

	"github.com/lanikai/rtcore/internal/events"
)

// ParseControlMessage decodes an RTP payload-type-100 control message, per
// spec.md §6: byte[0] is the tag, followed by UTF-8 name bytes for the
// ParticipantName variant only.
func ParseControlMessage(payload []byte) (events.ControlEvent, error) {
	if len(payload) < 1 {
		return events.ControlEvent{}, fmt.Errorf("media: empty control payload")
	}
	ev := events.ControlEvent{Tag: events.ControlTag(payload[0])}
	if ev.Tag == events.ParticipantName {
		ev.Name = string(payload[1:])
	}
	return ev, nil
}

// MarshalControlMessage encodes a control event for transmission on RTP
// payload type 100.
func MarshalControlMessage(ev events.ControlEvent) []byte {
	if ev.Tag == events.ParticipantName {
		buf := make([]byte, 1+len(ev.Name))
		buf[0] = byte(ev.Tag)
		copy(buf[1:], ev.Name)
		return buf
	}
	return []byte{byte(ev.Tag)}
}
