package main

import (
	"github.com/sidkik/scratchsync/cmd"
	"github.com/sidkik/scratchsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
