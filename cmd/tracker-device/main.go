package main

import "github.com/oshokin/bus-tracker/cmd/tracker-device/cmd"

func main() {
	cmd.Execute()
}
