package main

import "github.com/leafmark/reader/cmd/reader/cmd"

func main() {
	cmd.Execute()
}
