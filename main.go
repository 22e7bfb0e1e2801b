package main

import "github.com/KaramelBytes/funnelboard/cmd"

func main() {
	cmd.Execute()
}
