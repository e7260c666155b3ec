package main

import "github.com/theirongolddev/budgetscope/cmd"

func main() {
	cmd.Execute()
}
