package main

import "rmloc/internal/cli"

func main() {
	cli.Execute()
}
