package main

import (
	"log"

	"veil/config"
	"veil/server"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // .env — опционально, для локальной разработки

	cfg := config.MustLoad()
	app := &server.App{}
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
