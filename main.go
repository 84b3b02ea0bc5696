package main

import (
	"fmt"
	"os"

	"github.com/zeu5/studybreak-rl/commands"
)

// main entry point to the training, comparison and serving commands
func main() {
	// rootCommand defines a command line argument parser (some arguments and a subcommand to run)
	rootCommand := commands.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
