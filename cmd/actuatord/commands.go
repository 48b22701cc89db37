package main

import (
	"github.com/urfave/cli"
)

const runDescription = `Reads one command per line from stdin as "thrust,pitch,roll,yaw"
   (N and N·m). The loop holds idle until the settle delay has passed
   and shuts down on EOF, SIGINT or SIGTERM.`

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Value: "",
	Usage: "YAML configuration file (defaults are used when empty)",
}

var COMMANDS = []cli.Command{
	{
		Name:        "run",
		Usage:       "Open the ESC channel and run the actuation loop",
		Description: runDescription,
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{
				Name:  "driver",
				Usage: "Override hardware driver: serial, servoblaster or pca9685",
			},
			cli.StringFlag{
				Name:  "device",
				Usage: "Override the serial or servoblaster device path",
			},
			cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this rotating file instead of stderr",
			},
			cli.StringFlag{
				Name:  "record-dir",
				Usage: "Write a flight snapshot to this directory on shutdown",
			},
			cli.BoolFlag{
				Name:  "trace-channel",
				Usage: "Log channel open, close and every failed write",
			},
			cli.BoolFlag{
				Name:  "keep-stdin, k",
				Usage: "Keep running after stdin reaches EOF",
			},
		},
		Action: runCommand,
	},
	{
		Name:   "states",
		Usage:  "Print the loop lifecycle as a Graphviz DOT graph",
		Action: statesCommand,
	},
	{
		Name:   "check",
		Usage:  "Validate a configuration and print the derived limits",
		Flags:  []cli.Flag{configFlag},
		Action: checkCommand,
	},
}
