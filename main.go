package main

import (
	"github.com/Trozz/get-s3-checksums/internal/cmd"
)

func main() {
	cmd.Execute()
}
