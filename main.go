package main

import "github.com/nextlevelbuilder/govoice/cmd"

func main() {
	cmd.Execute()
}
