package main

import "trade-settlement/internal/cli"

func main() {
	cli.Execute()
}
