package main

import (
	"flag"
	"fmt"
	"os"
)

const version = "v0.2.0"

var (
	configPath string
	logLevel   string
)

// InitFlag parses the command line. -h and -v print and exit.
func InitFlag() {
	var help, showVersion bool
	flag.BoolVar(&help, "h", false, "show this help")
	flag.BoolVar(&showVersion, "v", false, "print the version")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "TOML config `file` with [view], [path], [task], [store] and [[sources]]")
	flag.StringVar(&logLevel, "l", "info", "log `level`: trace, debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "tiler %s flies a viewport along a GeoJSON path and loads the tiles it shows.\n\n", version)
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-c file] [-l level]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	switch {
	case help:
		flag.Usage()
		os.Exit(0)
	case showVersion:
		fmt.Println("tiler", version)
		os.Exit(0)
	}
}
