package main

import "github.com/forPelevin/vshorts/internal/cli"

func main() {
	cli.Main()
}
