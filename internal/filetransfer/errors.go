package filetransfer

import "github.com/lanikai/rtcore/internal/rtcerr"

var (
	errTransferNotInProgress = rtcerr.New(rtcerr.KindApplication, "filetransfer: transfer not in progress")
	errTransferOverrun       = rtcerr.New(rtcerr.KindApplication, "filetransfer: received more data than offered")
)
