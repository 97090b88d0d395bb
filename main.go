package main

import "github.com/ValentinKolb/dCP/cmd"

func main() {
	cmd.Execute()
}
