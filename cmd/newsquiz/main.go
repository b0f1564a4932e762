package main

import (
	"newsquiz/cmd/handlers"
	"newsquiz/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
