package main

import "github.com/atikulmunna/eveflow/internal/cmd"

func main() {
	cmd.Execute()
}
