package main

import "github.com/oshokin/presence-alarm/cmd/presence-monitor/cmd"

func main() {
	cmd.Execute()
}
