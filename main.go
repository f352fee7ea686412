package main

import "github.com/tessro/marquee/internal/cli"

func main() {
	cli.Execute()
}
