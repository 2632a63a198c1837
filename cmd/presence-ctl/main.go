package main

import "github.com/oshokin/presence-alarm/cmd/presence-ctl/cmd"

func main() {
	cmd.Execute()
}
