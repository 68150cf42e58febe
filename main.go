package main

import "github.com/agentforge/taskrunner/cmd"

func main() {
	cmd.Execute()
}
