package main

import "github.com/nextlevelbuilder/deskclaw/cmd"

func main() {
	cmd.Execute()
}
