package main

import "limeal.fr/mcboot/cmd"

func main() {
	cmd.Execute()
}
