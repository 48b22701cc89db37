package main

import (
	"log"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "actuatord"
	app.Usage = "Drive a quadrotor's four ESCs from attitude commands"
	app.Version = "0.1.0"
	app.Commands = COMMANDS

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}
