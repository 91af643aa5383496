package main

import "github.com/marvellous-media/marvellous-manager/cmd"

func main() {
	cmd.Execute()
}
