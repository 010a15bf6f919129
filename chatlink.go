package main

import (
	cli "github.com/chatlink/chatlink/cmd/chatlink"
)

func main() {
	cli.Execute()
}
