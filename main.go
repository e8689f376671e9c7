package main

import "github.com/qrave1/VanishRoom/cmd"

func main() {
	cmd.Execute()
}
