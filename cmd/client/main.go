package main

import "bizsync/cmd/client/cmd"

func main() {
	cmd.Execute()
}
