package main

import (
	"github.com/driftnote/voicectl/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
