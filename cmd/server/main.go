package main

import (
	"dadaal/internal/server"
)

func main() {
	server.ApiInit()
}
