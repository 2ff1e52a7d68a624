package main

import "github.com/seedwise/kindred/cmd"

func main() {
	cmd.Execute()
}
