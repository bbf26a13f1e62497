package main

import "github.com/killallgit/normachat/cmd"

func main() {
	cmd.Execute()
}
