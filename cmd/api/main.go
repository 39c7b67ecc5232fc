package main

import (
	"os"

	"apmdemo/cmd/api/commands"
)

// @title APM Demo API
// @version 1.0
// @description CRUD API for users, products and orders, instrumented for application performance monitoring.
// @BasePath /
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
