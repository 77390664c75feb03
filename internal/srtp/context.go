// Package srtp implements the SRTP protect/unprotect path from
// spec.md §4.5: AES-CTR payload encryption, HMAC-SHA1 authentication,
// per-SSRC session-key derivation, and a sliding replay window. There is
// no separate SRTCP transform: Protect and Unprotect treat the first 12
// bytes of every packet as an RTP header, and no SRTCP index or E flag is
// written or read.
package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"sync"

	"github.com/lanikai/rtcore/internal/rtcerr"
)

const (
	masterKeyLength  = 16
	masterSaltLength = 14
	authTagLength    = 10
	rtpHeaderLength  = 12

	labelEncrypt byte = 0x00
	labelAuth    byte = 0x01
)

// Keys holds the master key/salt pair for one traffic direction, per
// spec.md §3's RFC 5764 keying-material export layout.
type Keys struct {
	MasterKey  [masterKeyLength]byte
	MasterSalt [masterSaltLength]byte
}

// sessionKeys is derived once per SSRC and cached.
type sessionKeys struct {
	encKey  []byte // 16 bytes
	salt    []byte // 14 bytes
	authKey []byte // 20 bytes
}

// Context holds the local (send) and remote (receive) master keys for one
// peer connection and derives/caches per-SSRC session keys on demand. Per
// spec.md §5, a Context is mutated only by the thread that owns it: the
// receive thread for the remote-keyed unprotect path, each send path for
// its own protect-only context.
type Context struct {
	local  Keys
	remote Keys

	mu       sync.Mutex
	sessions map[uint32]*sessionKeys

	replay map[uint32]*replayWindow
}

// NewContext builds a Context from the local/remote SRTP keys derived by
// the DTLS keying-material export, per spec.md §3.
func NewContext(local, remote Keys) *Context {
	return &Context{
		local:    local,
		remote:   remote,
		sessions: make(map[uint32]*sessionKeys),
		replay:   make(map[uint32]*replayWindow),
	}
}

func deriveBlock(masterKey []byte, label byte, ssrc uint32) []byte {
	iv := make([]byte, aes.BlockSize)
	iv[0] = label
	binary.BigEndian.PutUint32(iv[1:5], ssrc)

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		panic("srtp: invalid master key length")
	}
	out := make([]byte, aes.BlockSize)
	cipher.NewCTR(block, iv).XORKeyStream(out, out)
	return out
}

// deriveSessionKeys implements spec.md §4.5's derivation:
//
//	session encryption key = AES-CTR(master_key, IV=label(0x00)||SSRC||0) truncated 16B
//	session salt           = master_salt XOR (SSRC at bytes 4..8) truncated 14B
//	session auth key       = derive with label 0x01, extended 16->20B by repeating first 4B
func deriveSessionKeys(k Keys, ssrc uint32) *sessionKeys {
	encKey := deriveBlock(k.MasterKey[:], labelEncrypt, ssrc)

	salt := append([]byte(nil), k.MasterSalt[:]...)
	var ssrcBytes [4]byte
	binary.BigEndian.PutUint32(ssrcBytes[:], ssrc)
	for i := 0; i < 4; i++ {
		salt[4+i] ^= ssrcBytes[i]
	}

	authBlock := deriveBlock(k.MasterKey[:], labelAuth, ssrc)
	authKey := append(append([]byte(nil), authBlock...), authBlock[:4]...)

	return &sessionKeys{encKey: encKey, salt: salt[:masterSaltLength], authKey: authKey}
}

func (c *Context) sessionFor(keys Keys, cacheBySSRC map[uint32]*sessionKeys, ssrc uint32) *sessionKeys {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sk, ok := c.sessions[ssrc]; ok {
		return sk
	}
	sk := deriveSessionKeys(keys, ssrc)
	c.sessions[ssrc] = sk
	return sk
}

func packetIV(salt []byte, seq uint16) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, salt) // 14B salt, padded to 16B with zeros
	var seqBytes [2]byte
	binary.BigEndian.PutUint16(seqBytes[:], seq)
	iv[4] ^= seqBytes[0]
	iv[5] ^= seqBytes[1]
	return iv
}

func cryptPayload(key, salt []byte, seq uint16, payload []byte) {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic("srtp: invalid session key length")
	}
	iv := packetIV(salt, seq)
	cipher.NewCTR(block, iv).XORKeyStream(payload, payload)
}

func hmacTag(authKey, data []byte) []byte {
	mac := hmac.New(sha1.New, authKey)
	mac.Write(data)
	return mac.Sum(nil)[:authTagLength]
}

func sequenceNumber(rtpHeader []byte) uint16 {
	return binary.BigEndian.Uint16(rtpHeader[2:4])
}

func ssrcOf(rtpHeader []byte) uint32 {
	return binary.BigEndian.Uint32(rtpHeader[8:12])
}

// Protect encrypts the RTP payload in place (assuming a bare 12-byte header
// with no CSRCs or extensions) and appends a 10-byte HMAC-SHA1 tag, per
// spec.md §4.5/§6.
func (c *Context) Protect(pkt []byte) ([]byte, error) {
	if len(pkt) < rtpHeaderLength {
		return nil, rtcerr.New(rtcerr.KindCryptographic, "srtp: packet too short to protect (%d bytes)", len(pkt))
	}
	ssrc := ssrcOf(pkt)
	seq := sequenceNumber(pkt)
	sk := c.sessionFor(c.local, c.sessions, ssrc)

	out := append([]byte(nil), pkt...)
	cryptPayload(sk.encKey, sk.salt, seq, out[rtpHeaderLength:])
	tag := hmacTag(sk.authKey, out)
	return append(out, tag...), nil
}

// Unprotect verifies and decrypts an SRTP packet, returning the plaintext
// RTP packet (header + payload, no tag). It rejects packets under 22 bytes,
// bad HMACs, and replays, per spec.md §4.5.
func (c *Context) Unprotect(pkt []byte) ([]byte, error) {
	if len(pkt) < rtpHeaderLength+authTagLength {
		return nil, rtcerr.New(rtcerr.KindCryptographic, "srtp: packet too short to unprotect (%d bytes)", len(pkt))
	}
	ssrc := ssrcOf(pkt)
	seq := sequenceNumber(pkt)
	sk := c.sessionFor(c.remote, c.sessions, ssrc)

	tagStart := len(pkt) - authTagLength
	expected := hmacTag(sk.authKey, pkt[:tagStart])
	if subtle.ConstantTimeCompare(expected, pkt[tagStart:]) != 1 {
		return nil, rtcerr.New(rtcerr.KindCryptographic, "srtp: HMAC verification failed")
	}

	if !c.checkAndMarkReplay(ssrc, seq) {
		return nil, rtcerr.New(rtcerr.KindCryptographic, "srtp: replayed or stale packet (seq %d)", seq)
	}

	out := append([]byte(nil), pkt[:tagStart]...)
	cryptPayload(sk.encKey, sk.salt, seq, out[rtpHeaderLength:])
	return out, nil
}

// ResetReplay clears the replay window for ssrc, used when a peer restarts
// its stream (e.g. a camera toggle), per spec.md §4.5.
func (c *Context) ResetReplay(ssrc uint32) {
	c.mu.Lock()
	delete(c.replay, ssrc)
	c.mu.Unlock()
}
