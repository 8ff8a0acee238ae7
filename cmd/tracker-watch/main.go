package main

import "github.com/oshokin/bus-tracker/cmd/tracker-watch/cmd"

func main() {
	cmd.Execute()
}
