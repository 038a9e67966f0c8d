package main

import "github.com/sw33tLie/rankbot/cmd"

func main() {
	cmd.Execute()
}
