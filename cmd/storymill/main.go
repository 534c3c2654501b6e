package main

import (
	"os"

	"github.com/storymill/storymill/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
