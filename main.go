package main

import "github.com/hookline/hookline/cmd"

func main() {
	cmd.Execute()
}
