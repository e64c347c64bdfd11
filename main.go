package main

import "github.com/stratabuild/strata/cmd"

func main() {
	cmd.Execute()
}
