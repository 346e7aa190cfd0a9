package main

import "github.com/relloyd/fieldpipe/cmd"

func main() {
	cmd.Execute()
}
