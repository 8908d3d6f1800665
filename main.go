package main

import "github.com/jfmyers9/soundscribe/cmd"

func main() {
	cmd.Execute()
}
