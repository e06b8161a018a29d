package main

import "github.com/felixgeelhaar/scribe/cmd/scribe/cli"

func main() {
	cli.Execute()
}
