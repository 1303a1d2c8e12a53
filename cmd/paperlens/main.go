package main

import (
	"paperlens/cmd/handlers"
)

func main() {
	handlers.Execute()
}
