package main

import "github.com/Ezrahel/auto-deploy-hng/cmd"

func main() {
	cmd.Execute()
}
