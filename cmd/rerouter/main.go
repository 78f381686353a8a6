package main

import "github.com/devicelab-dev/rerouter/pkg/cli"

func main() {
	cli.Execute()
}
