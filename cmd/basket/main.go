package main

import "github.com/ogulcanaydogan/basket-guardian/internal/cli"

func main() {
	cli.Execute()
}
