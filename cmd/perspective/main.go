// Package main is the perspective CLI.
package main

import (
	"log"
	"os"

	"go.viam.com/perspective/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
