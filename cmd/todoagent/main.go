package main

import "github.com/berth-dev/todoagent/internal/cli"

func main() {
	cli.Execute()
}
