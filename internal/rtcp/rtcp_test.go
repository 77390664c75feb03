package rtcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func block() ReportBlock {
	return ReportBlock{
		SSRC:                 0x1234,
		FractionLost:         12,
		CumulativeLost:       -5,
		ExtendedHighestSeq:   9000,
		Jitter:               42,
		LastSenderReportTime: 123456,
		DelaySinceLastSR:     789,
	}
}

func TestSenderReportRoundTrip(t *testing.T) {
	sr := &SenderReport{
		SSRC:         0xabcd,
		NTPTimestamp: 1 << 40,
		RTPTimestamp: 90000,
		PacketCount:  100,
		OctetCount:   150000,
		Reports:      []ReportBlock{block()},
	}
	buf := sr.Marshal()

	got, err := ParseSenderReport(buf)
	require.NoError(t, err)
	require.Equal(t, sr, got)
}

func TestReceiverReportRoundTrip(t *testing.T) {
	rr := &ReceiverReport{SSRC: 0x55, Reports: []ReportBlock{block(), block()}}
	buf := rr.Marshal()

	got, err := ParseReceiverReport(buf)
	require.NoError(t, err)
	require.Equal(t, rr, got)
}

func TestByeRoundTrip(t *testing.T) {
	bye := &Bye{SSRCs: []uint32{1, 2, 3}, Reason: "camera off"}
	buf := bye.Marshal()
	require.Equal(t, 0, len(buf)%4)

	got, err := ParseBye(buf)
	require.NoError(t, err)
	require.Equal(t, bye, got)
}

func TestByeRoundTripNoReason(t *testing.T) {
	bye := &Bye{SSRCs: []uint32{42}}
	buf := bye.Marshal()
	require.Equal(t, 0, len(buf)%4)

	got, err := ParseBye(buf)
	require.NoError(t, err)
	require.Equal(t, []uint32{42}, got.SSRCs)
	require.Empty(t, got.Reason)
}

func TestCumulativeLostSignExtends(t *testing.T) {
	b := block()
	b.CumulativeLost = -1
	sr := &SenderReport{Reports: []ReportBlock{b}}
	got, err := ParseSenderReport(sr.Marshal())
	require.NoError(t, err)
	require.Equal(t, int32(-1), got.Reports[0].CumulativeLost)
}
