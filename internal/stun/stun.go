// Package stun implements message encoding and decoding for STUN, RFC 5389,
// promoted out of the ICE agent so the TURN client can share the same codec.
package stun

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"net"
)

// Message classes.
const (
	ClassRequest         uint16 = 0
	ClassIndication      uint16 = 1
	ClassSuccessResponse uint16 = 2
	ClassErrorResponse   uint16 = 3
)

// Methods used by ICE and TURN.
const (
	MethodBinding           uint16 = 0x001
	MethodAllocate          uint16 = 0x003
	MethodRefresh           uint16 = 0x004
	MethodSend              uint16 = 0x006
	MethodData              uint16 = 0x007
	MethodCreatePermission  uint16 = 0x008
	MethodChannelBind       uint16 = 0x009
)

// Attribute types.
const (
	AttrMappedAddress      uint16 = 0x0001
	AttrUsername           uint16 = 0x0006
	AttrMessageIntegrity   uint16 = 0x0008
	AttrErrorCode          uint16 = 0x0009
	AttrUnknownAttributes  uint16 = 0x000A
	AttrRealm              uint16 = 0x0014
	AttrNonce              uint16 = 0x0015
	AttrXorRelayedAddress  uint16 = 0x0016
	AttrRequestedTransport uint16 = 0x0019
	AttrXorPeerAddress     uint16 = 0x0012
	AttrData               uint16 = 0x0013
	AttrXorMappedAddress   uint16 = 0x0020
	AttrPriority           uint16 = 0x0024
	AttrUseCandidate       uint16 = 0x0025
	AttrLifetime           uint16 = 0x000D
	AttrSoftware           uint16 = 0x8022
	AttrFingerprint        uint16 = 0x8028
	AttrIceControlled      uint16 = 0x8029
	AttrIceControlling     uint16 = 0x802A
)

const (
	headerLength = 20
	magicCookie  = 0x2112A442
)

var magicCookieBytes = [4]byte{0x21, 0x12, 0xA4, 0x42}

const fingerprintXor = 0x5354554e

// Attribute is a single TLV entry in a STUN message.
type Attribute struct {
	Type   uint16
	Length uint16
	Value  []byte
}

func (a *Attribute) numBytes() int {
	return 4 + int(a.Length) + pad4(a.Length)
}

func pad4(n uint16) int {
	return -int(n) & 3
}

var zeros = make([]byte, 32)

// Message is a decoded STUN message.
type Message struct {
	Length        uint16
	Class         uint16
	Method        uint16
	TransactionID string // 12 raw bytes
	Attributes    []*Attribute
}

// NewMessage builds an empty message. An empty transactionID generates a
// fresh random one.
func NewMessage(class, method uint16, transactionID string) (*Message, error) {
	if class>>2 != 0 {
		return nil, fmt.Errorf("stun: invalid message class %#x", class)
	}
	if method>>12 != 0 {
		return nil, fmt.Errorf("stun: invalid method %#x", method)
	}
	if transactionID == "" {
		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		transactionID = string(buf)
	} else if len(transactionID) != 12 {
		return nil, fmt.Errorf("stun: invalid transaction id length %d", len(transactionID))
	}
	return &Message{Class: class, Method: method, TransactionID: transactionID}, nil
}

// NewBindingRequest creates a Binding request, RFC 5389 §10.
func NewBindingRequest(transactionID string) (*Message, error) {
	return NewMessage(ClassRequest, MethodBinding, transactionID)
}

// Parse decodes a STUN message from data. It returns (nil, nil), not an
// error, when data does not look like STUN at all, so callers can fall
// through to other protocols sharing the same port (see internal/mux).
func Parse(data []byte) (*Message, error) {
	msg := parseHeader(data)
	if msg == nil {
		return nil, nil
	}

	b := bytes.NewBuffer(data[headerLength:])
	for b.Len() > 0 {
		attr, err := parseAttribute(b)
		if err != nil {
			return msg, err
		}
		msg.Attributes = append(msg.Attributes, attr)
	}
	return msg, nil
}

func parseHeader(data []byte) *Message {
	if len(data) < headerLength {
		return nil
	}

	messageType := binary.BigEndian.Uint16(data[0:2])
	if messageType>>14 != 0 {
		return nil
	}

	length := binary.BigEndian.Uint16(data[2:4])
	if length%4 != 0 {
		return nil
	}
	if int(length)+headerLength > len(data) {
		return nil
	}

	if binary.BigEndian.Uint32(data[4:8]) != magicCookie {
		return nil
	}

	class, method := decomposeMessageType(messageType)
	return &Message{
		Length:        length,
		Class:         class,
		Method:        method,
		TransactionID: string(data[8:20]),
	}
}

func composeMessageType(class, method uint16) uint16 {
	const classMask1, classMask2 = 0x0100, 0x0010
	const methodMask1, methodMask2, methodMask3 = 0x3e00, 0x00e0, 0x000f
	t := (class<<7)&classMask1 | (class<<4)&classMask2
	t |= (method<<2)&methodMask1 | (method<<1)&methodMask2 | (method & methodMask3)
	return t
}

func decomposeMessageType(t uint16) (uint16, uint16) {
	const classMask1, classMask2 = 0x0100, 0x0010
	const methodMask1, methodMask2, methodMask3 = 0x3e00, 0x00e0, 0x000f
	class := (t&classMask1)>>7 | (t&classMask2)>>4
	method := (t&methodMask1)>>2 | (t&methodMask2)>>1 | (t & methodMask3)
	return class, method
}

func parseAttribute(b *bytes.Buffer) (*Attribute, error) {
	if b.Len() < 4 {
		return nil, fmt.Errorf("stun: truncated attribute header")
	}
	typ := binary.BigEndian.Uint16(b.Next(2))
	length := binary.BigEndian.Uint16(b.Next(2))
	if int(length) > b.Len() {
		return nil, fmt.Errorf("stun: attribute type %#x claims length %d, only %d remain", typ, length, b.Len())
	}
	value := make([]byte, length)
	copy(value, b.Next(int(length)))
	b.Next(pad4(length))
	return &Attribute{typ, length, value}, nil
}

func writeAttribute(attr *Attribute, b *bytes.Buffer) {
	binary.BigEndian.PutUint16(b.Next(2), attr.Type)
	binary.BigEndian.PutUint16(b.Next(2), attr.Length)
	copy(b.Next(int(attr.Length)), attr.Value)
	copy(b.Next(pad4(attr.Length)), zeros)
}

// AddAttribute appends a raw attribute and returns it for later mutation
// (used by MESSAGE-INTEGRITY/FINGERPRINT, whose values depend on the bytes
// written so far).
func (msg *Message) AddAttribute(t uint16, v []byte) *Attribute {
	l := uint16(len(v))
	vcopy := make([]byte, l)
	copy(vcopy, v)
	attr := &Attribute{t, l, vcopy}
	msg.Attributes = append(msg.Attributes, attr)
	msg.Length += uint16(attr.numBytes())
	return attr
}

// Get returns the first attribute of the given type, or nil.
func (msg *Message) Get(t uint16) *Attribute {
	for _, attr := range msg.Attributes {
		if attr.Type == t {
			return attr
		}
	}
	return nil
}

// Bytes serializes the message, including all attributes added so far.
func (msg *Message) Bytes() []byte {
	return serialize(msg)
}

func serialize(msg *Message) []byte {
	buf := make([]byte, headerLength+int(msg.Length))
	b := bytes.NewBuffer(buf)
	writeHeader(msg, b)
	for _, attr := range msg.Attributes {
		writeAttribute(attr, b)
	}
	return buf
}

func writeHeader(msg *Message, b *bytes.Buffer) {
	messageType := composeMessageType(msg.Class, msg.Method)
	binary.BigEndian.PutUint16(b.Next(2), messageType)
	binary.BigEndian.PutUint16(b.Next(2), msg.Length)
	binary.BigEndian.PutUint32(b.Next(4), magicCookie)
	copy(b.Next(12), msg.TransactionID)
}

// XorMappedAddress returns the address carried by XOR-MAPPED-ADDRESS (or
// MAPPED-ADDRESS, without unmasking, for servers that still send the legacy
// attribute alongside it).
func (msg *Message) XorMappedAddress() *net.UDPAddr {
	if attr := msg.Get(AttrXorMappedAddress); attr != nil {
		return extractAddr(attr, msg.TransactionID, true)
	}
	if attr := msg.Get(AttrMappedAddress); attr != nil {
		return extractAddr(attr, msg.TransactionID, false)
	}
	return nil
}

// XorRelayedAddress returns the address carried by XOR-RELAYED-ADDRESS, as
// sent by a TURN server in an Allocate success response.
func (msg *Message) XorRelayedAddress() *net.UDPAddr {
	if attr := msg.Get(AttrXorRelayedAddress); attr != nil {
		return extractAddr(attr, msg.TransactionID, true)
	}
	return nil
}

// XorPeerAddress returns the address carried by XOR-PEER-ADDRESS, as used in
// TURN CreatePermission/ChannelBind/Send/Data.
func (msg *Message) XorPeerAddress() *net.UDPAddr {
	if attr := msg.Get(AttrXorPeerAddress); attr != nil {
		return extractAddr(attr, msg.TransactionID, true)
	}
	return nil
}

func extractAddr(attr *Attribute, transactionID string, doXor bool) *net.UDPAddr {
	if len(attr.Value) < 4 {
		return nil
	}
	addr := new(net.UDPAddr)
	addr.Port = int(binary.BigEndian.Uint16(attr.Value[2:4]))

	family := attr.Value[1]
	switch family {
	case 0x01:
		if len(attr.Value) < 8 {
			return nil
		}
		addr.IP = make([]byte, 4)
		copy(addr.IP, attr.Value[4:8])
	case 0x02:
		if len(attr.Value) < 20 {
			return nil
		}
		addr.IP = make([]byte, 16)
		copy(addr.IP, attr.Value[4:20])
	default:
		return nil
	}

	if doXor {
		addr.Port ^= magicCookie >> 16
		xorBytes(addr.IP[0:4], magicCookieBytes[:])
		xorBytes(addr.IP[4:], []byte(transactionID))
	}
	return addr
}

// AddXorMappedAddress adds an XOR-MAPPED-ADDRESS attribute for addr.
func (msg *Message) AddXorMappedAddress(addr *net.UDPAddr) {
	msg.addXorAddress(AttrXorMappedAddress, addr)
}

// AddXorRelayedAddress adds an XOR-RELAYED-ADDRESS attribute for addr.
func (msg *Message) AddXorRelayedAddress(addr *net.UDPAddr) {
	msg.addXorAddress(AttrXorRelayedAddress, addr)
}

// AddXorPeerAddress adds an XOR-PEER-ADDRESS attribute for addr.
func (msg *Message) AddXorPeerAddress(addr *net.UDPAddr) {
	msg.addXorAddress(AttrXorPeerAddress, addr)
}

func (msg *Message) addXorAddress(attrType uint16, addr *net.UDPAddr) {
	var value []byte
	if ip4 := addr.IP.To4(); ip4 != nil {
		value = make([]byte, 8)
		value[1] = 0x01
		copy(value[4:8], ip4)
	} else {
		value = make([]byte, 20)
		value[1] = 0x02
		copy(value[4:20], addr.IP.To16())
	}
	binary.BigEndian.PutUint16(value[2:4], uint16(addr.Port))

	xorBytes(value[2:4], magicCookieBytes[0:2])
	xorBytes(value[4:8], magicCookieBytes[:])
	xorBytes(value[8:], []byte(msg.TransactionID))
	msg.AddAttribute(attrType, value)
}

func xorBytes(dest []byte, xor []byte) {
	for i := range dest {
		dest[i] ^= xor[i]
	}
}

// AddMessageIntegrity appends MESSAGE-INTEGRITY, HMAC-SHA1 over every byte
// of the message up to (not including) this attribute, per RFC 5389 §15.4.
func (msg *Message) AddMessageIntegrity(key []byte) {
	sig := hmac.New(sha1.New, key)
	attr := msg.AddAttribute(AttrMessageIntegrity, zeros[0:20])

	b := serialize(msg)
	beforeAttr := len(b) - attr.numBytes()
	sig.Write(b[0:beforeAttr])
	copy(attr.Value, sig.Sum(nil))
}

// VerifyMessageIntegrity recomputes MESSAGE-INTEGRITY over the raw message
// bytes and compares it to the attribute's value.
func VerifyMessageIntegrity(raw []byte, key []byte) bool {
	msg, err := Parse(raw)
	if err != nil || msg == nil {
		return false
	}
	attr := msg.Get(AttrMessageIntegrity)
	if attr == nil || len(attr.Value) != 20 {
		return false
	}

	idx := bytes.Index(raw, attr.Value)
	if idx < 0 {
		return false
	}
	end := idx - 4 // back up over the attribute's type+length header
	if end < headerLength {
		return false
	}

	// The length field must cover the message only up to the end of
	// MESSAGE-INTEGRITY (RFC 5389 §15.4), not any FINGERPRINT after it.
	data := append([]byte(nil), raw[0:end]...)
	binary.BigEndian.PutUint16(data[2:4], uint16(end-headerLength+24))
	sig := hmac.New(sha1.New, key)
	sig.Write(data)
	return hmac.Equal(sig.Sum(nil), attr.Value)
}

// AddFingerprint appends FINGERPRINT, CRC-32 of the message XORed with the
// magic constant, per RFC 5389 §15.5.
func (msg *Message) AddFingerprint() {
	attr := msg.AddAttribute(AttrFingerprint, zeros[0:4])

	b := serialize(msg)
	beforeAttr := len(b) - attr.numBytes()
	crc := crc32.ChecksumIEEE(b[0:beforeAttr])
	binary.BigEndian.PutUint32(attr.Value, crc^fingerprintXor)
}

// AddPriority appends a PRIORITY attribute, RFC 8445 §5.1.2.
func (msg *Message) AddPriority(p uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	msg.AddAttribute(AttrPriority, v)
}

// Priority returns the value of the PRIORITY attribute, or 0 if absent.
func (msg *Message) Priority() uint32 {
	if attr := msg.Get(AttrPriority); attr != nil {
		return binary.BigEndian.Uint32(attr.Value)
	}
	return 0
}

// HasUseCandidate reports whether the message carries USE-CANDIDATE.
func (msg *Message) HasUseCandidate() bool {
	return msg.Get(AttrUseCandidate) != nil
}

// AddLifetime appends a LIFETIME attribute in seconds, for TURN Allocate and
// Refresh requests.
func (msg *Message) AddLifetime(seconds uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, seconds)
	msg.AddAttribute(AttrLifetime, v)
}

// Lifetime returns the value of the LIFETIME attribute, or 0 if absent.
func (msg *Message) Lifetime() uint32 {
	if attr := msg.Get(AttrLifetime); attr != nil {
		return binary.BigEndian.Uint32(attr.Value)
	}
	return 0
}

// ErrorCode decodes the ERROR-CODE attribute into (class*100+number, reason).
func (msg *Message) ErrorCode() (int, string) {
	attr := msg.Get(AttrErrorCode)
	if attr == nil || len(attr.Value) < 4 {
		return 0, ""
	}
	code := int(attr.Value[2])*100 + int(attr.Value[3])
	return code, string(attr.Value[4:])
}
