package rtcore

import (
	"fmt"

	"github.com/lanikai/rtcore/internal/srtp"
)

const (
	srtpMasterKeyLen  = 16
	srtpMasterSaltLen = 14
	srtpExportLen     = 2 * (srtpMasterKeyLen + srtpMasterSaltLen)
)

// deriveSRTPKeys slices the RFC 5705 keying material exported by the DTLS
// engine into client_write|server_write halves and maps them to local/
// remote per spec.md §3: the DTLS client sends with client_write and
// receives with server_write; the server maps inversely.
func (c *Connection) deriveSRTPKeys() (local, remote srtp.Keys, err error) {
	km := c.keyingMaterial
	if len(km) != srtpExportLen {
		return local, remote, fmt.Errorf("rtcore: unexpected keying material length %d", len(km))
	}

	var clientWrite, serverWrite srtp.Keys
	off := 0
	copy(clientWrite.MasterKey[:], km[off:off+srtpMasterKeyLen])
	off += srtpMasterKeyLen
	copy(clientWrite.MasterSalt[:], km[off:off+srtpMasterSaltLen])
	off += srtpMasterSaltLen
	copy(serverWrite.MasterKey[:], km[off:off+srtpMasterKeyLen])
	off += srtpMasterKeyLen
	copy(serverWrite.MasterSalt[:], km[off:off+srtpMasterSaltLen])

	if c.dtlsIsClient {
		return clientWrite, serverWrite, nil
	}
	return serverWrite, clientWrite, nil
}
