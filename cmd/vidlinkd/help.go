package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagConfig      string
	flagSource      string
	flagOutput      string
	flagWidth       int
	flagHeight      int
	flagFrameRate   int
	flagMetricsAddr string
	flagLogLevel    string
	flagHelp        bool
	flagVersion     bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "YAML configuration file")
	flag.StringVarP(&flagSource, "source", "i", "udp::5600", "Video link source")
	flag.StringVarP(&flagOutput, "output", "o", "", "Write decoded access units to FILE")
	flag.IntVarP(&flagWidth, "width", "x", 1920, "Video width")
	flag.IntVarP(&flagHeight, "height", "y", 1080, "Video height")
	flag.IntVarP(&flagFrameRate, "fps", "r", 30, "Nominal frame rate")
	flag.StringVarP(&flagMetricsAddr, "metrics-address", "m", ":9105", "Prometheus metrics address")
	flag.StringVarP(&flagLogLevel, "log", "l", "", "Log level directives, e.g. info,codec=debug")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Vehicle video link decoder

Usage: vidlinkd [OPTION]...

Video link:
  -i, --source=SPEC      Video link source (default: udp::5600)
                           udp:HOST:PORT  datagrams, multicast groups joined
                           rtp:HOST:PORT  H.264 over RTP
                           ws:[HOST]:PORT websocket publisher on /video
                           h264:FILE      raw Annex B recording
                           mp4:FILE       MP4 recording
  -c, --config=FILE      YAML configuration file

Decoder:
  -o, --output=FILE      Write decoded access units to FILE
  -x, --width=NUM        Set video width (default: 1920)
  -y, --height=NUM       Set video height (default: 1080)
  -r, --fps=NUM          Nominal frame rate (default: 30)

Miscellaneous:
  -m, --metrics-address=ADDR
                         Serve Prometheus metrics on ADDR (default: :9105)
  -l, --log=DIRECTIVES   Log levels, e.g. "info,codec=debug"
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits

Please report bugs to: aloha@lanikailabs.com`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//        _     _  _  _         _
	// __   _(_) __| || |(_) _ __  | | __
	// \ \ / / |/ _` || || || '_ \ | |/ /
	//  \ V /| | (_| || || || | | ||   <
	//   \_/ |_|\__,_||_||_||_| |_||_|\_\

	// Line 1
	r.Printf("       ")
	y.Printf("_ ")
	b.Printf("    _ ")
	r.Printf(" _ ")
	y.Printf(" _      ")
	b.Println("   _    ")

	// Line 2
	r.Printf("__   _")
	y.Printf("(_)")
	b.Printf(" __| |")
	r.Printf("| |")
	y.Printf("(_) _ __ ")
	b.Println(" | | __")

	// Line 3
	r.Printf("\\ \\ / /")
	y.Printf(" |")
	b.Printf("/ _` |")
	r.Printf("| |")
	y.Printf("| || '_ \\ ")
	b.Println("| |/ /")

	// Line 4
	r.Printf(" \\ V /")
	y.Printf("| |")
	b.Printf(" (_| |")
	r.Printf("| |")
	y.Printf("| || | | |")
	b.Println("|   < ")

	// Line 5
	r.Printf("  \\_/ ")
	y.Printf("|_|")
	b.Printf("\\__,_|")
	r.Printf("|_|")
	y.Printf("|_||_| |_|")
	b.Println("|_|\\_\\")

	fmt.Println(helpString)
}

// Populated via -ldflags="-X main.GitRevisionId=...".
var GitRevisionId string

func version() {
	fmt.Println("vidlinkd", GitRevisionId)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
}
