package main

import "github.com/rb130/gdb-trace/cmd"

func main() {
	cmd.Execute()
}
