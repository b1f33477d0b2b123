package main

import "github.com/mcoot/gamewallet/internal/cli"

func main() {
	cli.Execute()
}
