package main

import (
	"fic-gradebot/cmd/gradebot/commands"
	"fic-gradebot/lib/util/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()
	commands.ExecuteContext(ctx)
}
