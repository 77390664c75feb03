package rtcore

import (
	"time"

	"github.com/lanikai/rtcore/internal/datachannel"
	"github.com/lanikai/rtcore/internal/events"
	"github.com/lanikai/rtcore/internal/filetransfer"
	"github.com/lanikai/rtcore/internal/rtcerr"
)

// newDataChannelManager binds a datachannel.Manager to the connection's
// SCTP association, per spec.md §4.10: every outbound DCEP/data message
// goes through SendData, followed by draining whatever the association
// queued in response.
func newDataChannelManager(c *Connection) *datachannel.Manager {
	return datachannel.NewManager(c.dtlsIsClient, func(streamID uint16, ppid uint32, payload []byte, unordered bool) error {
		if err := c.assoc.SendData(streamID, ppid, payload, unordered); err != nil {
			return err
		}
		c.drainSCTPOutput()
		return nil
	})
}

// newFileTransferManager binds a filetransfer.Manager to the data-channel
// manager, forwarding every TransferEvent onto the connection's event bus,
// per spec.md §4.11.
func newFileTransferManager(c *Connection) *filetransfer.Manager {
	return filetransfer.NewManager(c.dcManager, c.cfg.DataDir, func(typ events.Type, ev events.TransferEvent) {
		c.emit(events.Event{Type: typ, Transfer: ev})
	})
}

// dispatchDataChannelEvent routes a datachannel.Event to the file-transfer
// manager when it concerns the well-known file-transfer channel, per
// spec.md §4.10/§4.11.
func (c *Connection) dispatchDataChannelEvent(ev datachannel.Event) {
	if ev.Channel == nil || ev.Channel.Label != datachannel.FileTransferLabel {
		return
	}
	if ev.Opened {
		c.ftManager.OnChannelOpened(ev.Channel)
		return
	}
	if ev.Message != nil {
		c.ftManager.HandleMessage(ev.Message)
	}
}

// logTransferCallerError reports a file-transfer API misuse (caller passed
// an unknown/finished transfer id) at Warn, since it indicates the caller's
// own bookkeeping is out of sync with this core's; any other Kind is left
// for the caller to handle without extra logging here.
func logTransferCallerError(op string, err error) error {
	if err != nil && rtcerr.Is(err, rtcerr.KindApplication) {
		logger.Warn("rtcore: %s: %v", op, err)
	}
	return err
}

// OfferFile begins an outgoing file transfer, per spec.md §4.11.
func (c *Connection) OfferFile(filename, mimeType string, data []byte) (uint64, error) {
	return c.ftManager.OfferFile(filename, mimeType, data)
}

// AcceptTransfer accepts an inbound file-transfer offer by id.
func (c *Connection) AcceptTransfer(id uint64) error {
	return logTransferCallerError("accept transfer", c.ftManager.AcceptTransfer(id))
}

// RejectTransfer rejects an inbound file-transfer offer by id.
func (c *Connection) RejectTransfer(id uint64, reason string) error {
	return logTransferCallerError("reject transfer", c.ftManager.RejectTransfer(id, reason))
}

// CancelTransfer cancels an in-progress transfer, inbound or outbound.
func (c *Connection) CancelTransfer(id uint64, reason string) error {
	return logTransferCallerError("cancel transfer", c.ftManager.CancelTransfer(id, reason))
}

// waitConnected polls every 20ms until the connection reaches Connected or
// timeout elapses, and reports whether it is Connected.
func (c *Connection) waitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if c.State() == events.StateConnected {
			return true
		}
		<-ticker.C
	}
	return c.State() == events.StateConnected
}
