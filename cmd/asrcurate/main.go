package main

import "github.com/forPelevin/asrcurate/internal/cli"

func main() {
	cli.Main()
}
