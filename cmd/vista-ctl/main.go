package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"vista/internal/config"
	"vista/internal/ipc"
)

const usage = `usage: vista-ctl [flags] <command> [arg]

commands:
  start             start the session
  stop              stop the session
  trigger           act as if the wake phrase was heard
  continuous on|off switch continuous listening
  status            print the session state
`

func main() {
	socket := cli.StringP("socket", "s", config.DefaultSocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 30*time.Second, "Reply timeout")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}
	req := ipc.Request{Cmd: args[0]}
	if len(args) > 1 {
		req.Arg = args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := ipc.Send(ctx, *socket, req)
	if err != nil {
		fmt.Println("vista-daemon not running:", err)
		os.Exit(1)
	}

	fmt.Printf("state:      %s\n", resp.State)
	fmt.Printf("continuous: %v\n", resp.Continuous)
	if resp.Status != "" {
		fmt.Printf("status:     %s\n", resp.Status)
	}
	if !resp.OK {
		fmt.Println("error:     ", resp.Error)
		os.Exit(1)
	}
}
