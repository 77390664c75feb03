package srtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeys(fill byte) Keys {
	var k Keys
	for i := range k.MasterKey {
		k.MasterKey[i] = fill
	}
	for i := range k.MasterSalt {
		k.MasterSalt[i] = fill + 1
	}
	return k
}

func rtpPacket(ssrc uint32, seq uint16) []byte {
	pkt := make([]byte, rtpHeaderLength+8)
	pkt[0] = 0x80
	pkt[1] = 96
	pkt[2] = byte(seq >> 8)
	pkt[3] = byte(seq)
	pkt[8] = byte(ssrc >> 24)
	pkt[9] = byte(ssrc >> 16)
	pkt[10] = byte(ssrc >> 8)
	pkt[11] = byte(ssrc)
	copy(pkt[rtpHeaderLength:], []byte("payload!"))
	return pkt
}

func TestProtectUnprotectRoundTrip(t *testing.T) {
	clientKeys := testKeys(0x11)
	serverKeys := testKeys(0x22)

	sender := NewContext(clientKeys, serverKeys)
	receiver := NewContext(serverKeys, clientKeys)

	pkt := rtpPacket(0xcafe, 1)
	protected, err := sender.Protect(pkt)
	require.NoError(t, err)
	require.Len(t, protected, len(pkt)+authTagLength)

	plain, err := receiver.Unprotect(protected)
	require.NoError(t, err)
	require.Equal(t, pkt, plain)
}

func TestUnprotectRejectsTamperedTag(t *testing.T) {
	clientKeys := testKeys(0x33)
	serverKeys := testKeys(0x44)
	sender := NewContext(clientKeys, serverKeys)
	receiver := NewContext(serverKeys, clientKeys)

	protected, err := sender.Protect(rtpPacket(1, 1))
	require.NoError(t, err)
	protected[len(protected)-1] ^= 0xff

	_, err = receiver.Unprotect(protected)
	require.Error(t, err)
}

func TestUnprotectRejectsReplay(t *testing.T) {
	clientKeys := testKeys(0x55)
	serverKeys := testKeys(0x66)
	sender := NewContext(clientKeys, serverKeys)
	receiver := NewContext(serverKeys, clientKeys)

	protected, err := sender.Protect(rtpPacket(7, 10))
	require.NoError(t, err)

	_, err = receiver.Unprotect(protected)
	require.NoError(t, err)

	_, err = receiver.Unprotect(protected)
	require.Error(t, err)
}

func TestUnprotectRejectsShortPacket(t *testing.T) {
	ctx := NewContext(testKeys(1), testKeys(2))
	_, err := ctx.Unprotect(make([]byte, rtpHeaderLength))
	require.Error(t, err)
}
