package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"voxline/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	cli.Parse()

	cmd := ipc.CmdTrigger
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	r, err := ipc.Send(*socket, cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voxline-daemon not running:", err)
		os.Exit(1)
	}
	if r.Message != "" {
		fmt.Println(r.Message)
	}
	if !r.OK {
		os.Exit(1)
	}
}
