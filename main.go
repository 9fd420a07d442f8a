package main

import "fimwatch/cmd"

func main() {
	cmd.Execute()
}
