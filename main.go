package main

import "github.com/kiesman99/tilewms/cmd"

func main() {
	cmd.Execute()
}
