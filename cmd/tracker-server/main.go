package main

import "github.com/oshokin/bus-tracker/cmd/tracker-server/cmd"

func main() {
	cmd.Execute()
}
