package main

import "github.com/oshokin/bus-tracker/cmd/tracker-panic/cmd"

func main() {
	cmd.Execute()
}
