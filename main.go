package main

import (
	"github.com/sidkik/turbosync/cmd"
	"github.com/sidkik/turbosync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
