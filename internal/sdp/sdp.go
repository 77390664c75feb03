// Package sdp implements the session-description codec from spec.md §3/§6:
// a generic SDP (RFC 4566) line-oriented parser/writer, plus the
// domain-specific pieces this core actually needs — candidate lines,
// fingerprint, and setup role — layered on top of a single `m=application`
// media section.
package sdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Session is a parsed SDP session description (RFC 4566 subset).
type Session struct {
	Version    int
	Origin     Origin
	Name       string
	Time       []Time
	Attributes []Attribute
	Media      []Media

	attributeCache map[string]string
}

type Origin struct {
	Username       string
	SessionID      string
	SessionVersion uint64
	NetworkType    string
	AddressType    string
	Address        string
}

type Time struct {
	Start *time.Time
	Stop  *time.Time
}

type Attribute struct {
	Key   string
	Value string
}

type Media struct {
	Type       string
	Port       int
	Proto      string
	Format     []string
	Attributes []Attribute

	attributeCache map[string]string
}

type parseError struct {
	which string
	value string
	cause error
}

func (e *parseError) Error() string {
	msg := fmt.Sprintf("sdp: invalid %s description: %q", e.which, e.value)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (o Origin) String() string {
	return fmt.Sprintf("%s %s %d IN %s %s", o.Username, o.SessionID, o.SessionVersion, o.AddressType, o.Address)
}

func parseOrigin(s string) (o Origin, err error) {
	_, err = fmt.Sscanf(s, "%s %s %d %s %s %s",
		&o.Username, &o.SessionID, &o.SessionVersion, &o.NetworkType, &o.AddressType, &o.Address)
	if err != nil {
		err = &parseError{"origin", s, err}
	}
	return
}

func toNTP(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix() + 2208988800
}

func fromNTP(ntp int64) *time.Time {
	if ntp == 0 {
		return nil
	}
	t := time.Unix(ntp-2208988800, 0)
	return &t
}

func (t Time) String() string {
	return fmt.Sprintf("%d %d", toNTP(t.Start), toNTP(t.Stop))
}

func parseTime(s string) (t Time, err error) {
	var start, stop int64
	_, err = fmt.Sscanf(s, "%d %d", &start, &stop)
	t.Start, t.Stop = fromNTP(start), fromNTP(stop)
	if err != nil {
		err = &parseError{"time", s, err}
	}
	return
}

func (a Attribute) String() string {
	if a.Value == "" {
		return a.Key
	}
	return fmt.Sprintf("%s:%s", a.Key, a.Value)
}

func parseAttribute(s string) Attribute {
	f := strings.SplitN(s, ":", 2)
	if len(f) == 2 {
		return Attribute{f[0], f[1]}
	}
	return Attribute{Key: f[0]}
}

// GetAttr returns the value of the first attribute named key, or "".
func (m *Media) GetAttr(key string) string {
	if m.attributeCache == nil {
		m.attributeCache = make(map[string]string, len(m.Attributes))
		for _, a := range m.Attributes {
			if _, ok := m.attributeCache[a.Key]; !ok {
				m.attributeCache[a.Key] = a.Value
			}
		}
	}
	return m.attributeCache[key]
}

// GetAttrs returns all attribute values named key, in order (used for
// multiple `a=candidate` lines).
func (m *Media) GetAttrs(key string) []string {
	var out []string
	for _, a := range m.Attributes {
		if a.Key == key {
			out = append(out, a.Value)
		}
	}
	return out
}

func (m *Media) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "m=%s %d %s %s\r\n", m.Type, m.Port, m.Proto, strings.Join(m.Format, " "))
	for _, a := range m.Attributes {
		fmt.Fprintf(&b, "a=%s\r\n", a.String())
	}
	return b.String()
}

func parseMedia(text string) (m Media, rest string, err error) {
	line, more := nextLine(text)
	if len(line) < 2 || line[0:2] != "m=" {
		return m, text, fmt.Errorf("invalid media line: %s", line)
	}
	fields := strings.Fields(line[2:])
	if len(fields) < 3 {
		return m, text, fmt.Errorf("invalid media line: %s", line)
	}
	m.Type = fields[0]
	if m.Port, err = strconv.Atoi(fields[1]); err != nil {
		return m, text, &parseError{"media", line, err}
	}
	m.Proto = fields[2]
	m.Format = fields[3:]

	for text = more; text != ""; text = more {
		line, more = nextLine(text)
		if len(line) >= 2 && line[0] == 'm' && line[1] == '=' {
			break
		}
		typecode, value, err := splitTypeValue(line)
		if err != nil {
			return m, text, err
		}
		if typecode == 'a' {
			m.Attributes = append(m.Attributes, parseAttribute(value))
		}
	}
	return m, text, nil
}

// GetAttr returns the value of the first session-level attribute named key.
func (s *Session) GetAttr(key string) string {
	if s.attributeCache == nil {
		s.attributeCache = make(map[string]string, len(s.Attributes))
		for _, a := range s.Attributes {
			if _, ok := s.attributeCache[a.Key]; !ok {
				s.attributeCache[a.Key] = a.Value
			}
		}
	}
	return s.attributeCache[key]
}

func (s *Session) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "v=%d\r\n", s.Version)
	fmt.Fprintf(&b, "o=%s\r\n", s.Origin.String())
	fmt.Fprintf(&b, "s=%s\r\n", s.Name)
	for _, t := range s.Time {
		fmt.Fprintf(&b, "t=%s\r\n", t.String())
	}
	for _, a := range s.Attributes {
		fmt.Fprintf(&b, "a=%s\r\n", a.String())
	}
	for _, m := range s.Media {
		b.WriteString(m.String())
	}
	return b.String()
}

// Parse decodes a full SDP session description.
func Parse(text string) (s Session, err error) {
	var line, more string
	for ; text != ""; text = more {
		line, more = nextLine(text)
		if line == "" {
			continue
		}
		typecode, value, terr := splitTypeValue(line)
		if terr != nil {
			return s, terr
		}
		switch typecode {
		case 'v':
			if s.Version, err = strconv.Atoi(value); err != nil {
				return s, &parseError{"version", line, err}
			}
		case 'o':
			if s.Origin, err = parseOrigin(value); err != nil {
				return s, err
			}
		case 's':
			s.Name = value
		case 't':
			var t Time
			if t, err = parseTime(value); err != nil {
				return s, err
			}
			s.Time = append(s.Time, t)
		case 'a':
			s.Attributes = append(s.Attributes, parseAttribute(value))
		case 'm':
			var m Media
			if m, more, err = parseMedia(text); err != nil {
				return s, err
			}
			s.Media = append(s.Media, m)
			continue
		}
	}
	return s, nil
}

func nextLine(input string) (line string, remainder string) {
	n := strings.IndexByte(input, '\n')
	if n == -1 {
		return input, ""
	}
	if n > 0 && input[n-1] == '\r' {
		line = input[:n-1]
	} else {
		line = input[:n]
	}
	return line, input[n+1:]
}

func splitTypeValue(line string) (typecode byte, value string, err error) {
	if len(line) < 2 || line[1] != '=' {
		return 0, "", fmt.Errorf("sdp: invalid line: %q", line)
	}
	return line[0], line[2:], nil
}
