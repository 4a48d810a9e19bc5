package main

import "github.com/forPelevin/ytscribe/internal/cli"

func main() {
	cli.Main()
}
