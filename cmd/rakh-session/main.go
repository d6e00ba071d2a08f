package main

import "github.com/adeilh/go-rakh-session/cmd/rakh-session/cmd"

func main() {
	cmd.Execute()
}
