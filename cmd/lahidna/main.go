package main

import "github.com/MeKo-Tech/lahidna/cmd/lahidna/cmd"

func main() {
	cmd.Execute()
}
