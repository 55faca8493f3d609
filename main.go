package main

import "leadgrid/cmd"

func main() {
	cmd.Execute()
}
