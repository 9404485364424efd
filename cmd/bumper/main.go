package main

import (
	"forumbump/cmd/bumper/commands"
	"forumbump/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
