package main

import (
	flag "github.com/spf13/pflag"
)

var (
	flagConfig   string
	flagListen   string
	flagCallee   bool
	flagSendFile string
	flagHelp     bool
	flagVersion  bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "rtcored.yaml", "Configuration file")
	flag.StringVarP(&flagListen, "signaling", "s", "", "Signaling server URL (overrides config)")
	flag.BoolVarP(&flagCallee, "answer", "a", false, "Wait for an offer instead of creating one")
	flag.StringVarP(&flagSendFile, "send-file", "f", "", "Offer this file over the data channel once connected")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Peer-to-peer media and file transfer daemon

Usage: rtcored [OPTION]...

Configuration:
  -c, --config=FILE      Configuration file (default: rtcored.yaml)

Signaling:
  -s, --signaling=URI    Signaling server URL, ws:// or wss:// (overrides config)
  -a, --answer           Wait for a remote offer instead of creating one

File transfer:
  -f, --send-file=FILE   Offer this file over the data channel once connected

Miscellaneous:
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits
`

func version() {
	println("rtcored (rtcore core)")
}
