package sdp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	opts := BuildOptions{
		SessionID:   "1234",
		Address:     "10.0.0.5",
		IceUfrag:    "ufrag1",
		IcePwd:      "pwd12345678901234567890",
		Fingerprint: "AB:CD:EF",
		Setup:       SetupActPass,
		Candidates: []CandidateLine{
			{Foundation: "f1", Component: 1, Transport: "UDP", Priority: 2130706431, Address: "10.0.0.5", Port: 54321, Type: "host"},
		},
	}

	session := Build(opts)
	text := session.String()

	parsed, err := Parse(text)
	require.NoError(t, err)

	ufrag, pwd, ok := parsed.IceCredentials()
	require.True(t, ok)
	require.Equal(t, opts.IceUfrag, ufrag)
	require.Equal(t, opts.IcePwd, pwd)

	algo, digest, ok := parsed.Fingerprint()
	require.True(t, ok)
	require.Equal(t, "sha-256", algo)
	require.Equal(t, opts.Fingerprint, digest)

	setup, ok := parsed.SetupRole()
	require.True(t, ok)
	require.Equal(t, SetupActPass, setup)

	candidates := parsed.Candidates()
	require.Len(t, candidates, 1)
	require.Equal(t, opts.Candidates[0].Address, candidates[0].Address)
	require.Equal(t, opts.Candidates[0].Port, candidates[0].Port)
	require.Equal(t, opts.Candidates[0].Type, candidates[0].Type)
}

func TestParseCandidateLineRelay(t *testing.T) {
	line := "f1 1 UDP 16777215 203.0.113.1 51000 typ relay raddr 192.168.1.1 rport 6000"
	c, err := ParseCandidateLine(line)
	require.NoError(t, err)
	require.Equal(t, "relay", c.Type)
	require.Equal(t, "192.168.1.1", c.RelAddr)
	require.Equal(t, 6000, c.RelPort)
	require.Equal(t, line, c.String())
}

func TestParseCandidateLineRejectsMalformed(t *testing.T) {
	_, err := ParseCandidateLine("not enough fields")
	require.Error(t, err)
}

func TestParseCandidateLineRejectsMissingTyp(t *testing.T) {
	_, err := ParseCandidateLine("f1 1 UDP 100 10.0.0.1 5000 nope host")
	require.Error(t, err)
}

func TestResolveDTLSRoleOfferer(t *testing.T) {
	require.True(t, ResolveDTLSRole(true, SetupPassive), "peer passive means we are client")
	require.False(t, ResolveDTLSRole(true, SetupActive), "peer active means we are server")
}

func TestResolveDTLSRoleAnswerer(t *testing.T) {
	require.True(t, ResolveDTLSRole(false, SetupActPass))
}
