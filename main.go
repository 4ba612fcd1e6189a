package main

import (
	"github.com/ColonelBlimp/bandwatch/cmd"
	"github.com/ColonelBlimp/bandwatch/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
