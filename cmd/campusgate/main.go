package main

import "github.com/jmcleod/campusgate/cmd/campusgate/cmd"

func main() {
	cmd.Execute()
}
