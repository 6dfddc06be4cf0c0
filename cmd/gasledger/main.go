package main

import "gasledger/internal/cli"

func main() {
	cli.Execute()
}
