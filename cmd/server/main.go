package main

import "github.com/Togather-Foundation/recipes/cmd/server/cmd"

func main() {
	cmd.Execute()
}
