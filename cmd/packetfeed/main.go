package main

import "github.com/vietddude/packetfeed/internal/cli"

func main() {
	cli.Execute()
}
