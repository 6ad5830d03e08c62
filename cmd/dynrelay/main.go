package main

import "github.com/dynrelay/dynrelay/internal/cli"

func main() {
	cli.Execute()
}
