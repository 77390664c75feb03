// Command rtcored is a minimal CLI front end for the rtcore peer-to-peer
// core: it dials the out-of-band signaling server (spec.md §6), drives the
// offer/answer/ICE-candidate exchange, and once Connected, optionally offers
// a file over the data channel. Camera/microphone capture and the
// signaling server itself are external collaborators per spec.md §1 and
// are not provided here; this binary exists to exercise the orchestrator
// end to end, the way the teacher's cmd/alohartcd exercises alohartc.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/rtcore"
	"github.com/lanikai/rtcore/internal/config"
	"github.com/lanikai/rtcore/internal/dtls"
	"github.com/lanikai/rtcore/internal/events"
	"github.com/lanikai/rtcore/internal/rtclog"
	"github.com/lanikai/rtcore/internal/signaling"
)

var logger = rtclog.New("rtcored")

func main() {
	flag.Parse()

	if flagHelp {
		fmt.Print(helpString)
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if flagListen != "" {
		cfg.SignalingAddr = flagListen
	}
	rtclog.SetLevel(cfg.LogLevel)

	// Certificate generation is process-global per spec.md §9: one
	// self-signed cert is reused for every connection this process makes.
	cert, err := dtls.GenerateSelfSigned()
	if err != nil {
		logger.Fatal("generate dtls certificate: %v", err)
		os.Exit(1)
	}

	callID := uuid.NewString()
	conn, err := rtcore.New(cfg, cert, callID)
	if err != nil {
		logger.Fatal("create connection: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	sigClient, err := signaling.Dial(cfg.SignalingAddr)
	if err != nil {
		logger.Fatal("dial signaling server %s: %v", cfg.SignalingAddr, err)
		os.Exit(1)
	}
	defer sigClient.Close()

	h := &handler{conn: conn, sig: sigClient}
	if !flagCallee {
		// As the offerer we mint the call_id ourselves; the answerer instead
		// adopts whatever call_id arrives on the first offer, since call_id
		// assignment is the out-of-band signaling server's job per spec.md
		// §1/§6, not something this core can presume in advance.
		h.callID = callID
	}

	go func() {
		if err := sigClient.Listen(h); err != nil {
			logger.Warn("signaling connection closed: %v", err)
		}
	}()

	if !flagCallee {
		offerSDP, err := conn.CreateOffer()
		if err != nil {
			logger.Fatal("create offer: %v", err)
			os.Exit(1)
		}
		if err := sigClient.Send(signaling.NewOfferMessage(callID, nil, offerSDP)); err != nil {
			logger.Fatal("send offer: %v", err)
			os.Exit(1)
		}
	}

	go reportEvents(conn)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fileOffered := false
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			_ = sigClient.Send(signaling.NewHangupMessage(callID))
			return
		case <-poll.C:
			if conn.State() == events.StateClosed {
				return
			}
			if !fileOffered && flagSendFile != "" && conn.State() == events.StateConnected {
				data, err := os.ReadFile(flagSendFile)
				if err != nil {
					logger.Warn("read %s: %v", flagSendFile, err)
				} else if _, err := conn.OfferFile(flagSendFile, "application/octet-stream", data); err != nil {
					logger.Warn("offer file %s: %v", flagSendFile, err)
				}
				fileOffered = true
			}
		}
	}
}

func reportEvents(conn *rtcore.Connection) {
	for ev := range conn.Events() {
		switch ev.Type {
		case events.ConnectionStateChanged:
			logger.Info("connection state: %s", ev.ConnectionState)
		case events.SecurityError:
			logger.Error("security error: %s", ev.SecurityError)
		case events.TransferProgress, events.TransferCompleted, events.TransferFailed, events.TransferCancelled:
			if ev.Transfer != nil {
				logger.Info("transfer %d: %v (%d/%d bytes)", ev.Transfer.ID, ev.Type, ev.Transfer.BytesTransferred, ev.Transfer.TotalSize)
			}
		case events.StatsTick:
			if ev.Stats != nil {
				logger.Debug("stats tick: %+v", ev.Stats)
			}
		}
	}
}

// handler bridges the websocket signaling.Client to the Connection's
// offer/answer/candidate entry points, per spec.md §6. callID is empty
// until the answerer side adopts it from the first inbound offer.
type handler struct {
	callID string
	conn   *rtcore.Connection
	sig    *signaling.Client
}

func (h *handler) HandleRemoteOffer(callID, sdp string) {
	if h.callID == "" {
		h.callID = callID
	} else if callID != h.callID {
		return
	}
	answerSDP, err := h.conn.SetRemoteOffer(sdp)
	if err != nil {
		logger.Warn("set remote offer: %v", err)
		return
	}
	if err := h.sig.Send(signaling.NewAnswerMessage(h.callID, answerSDP)); err != nil {
		logger.Warn("send answer: %v", err)
	}
}

func (h *handler) HandleRemoteAnswer(callID, sdp string) {
	if callID != h.callID {
		return
	}
	if err := h.conn.SetRemoteAnswer(sdp); err != nil {
		logger.Warn("set remote answer: %v", err)
	}
}

func (h *handler) HandleRemoteCandidate(callID, candidate, _ string, _ int) {
	if callID != h.callID {
		return
	}
	if err := h.conn.AddRemoteICECandidate(candidate); err != nil {
		logger.Warn("add remote candidate: %v", err)
	}
}

func (h *handler) HandleHangup(callID string) {
	if callID != h.callID {
		return
	}
	h.conn.Close()
}
