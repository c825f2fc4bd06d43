package main

import (
	"log"

	"github.com/MrSnakeDoc/ipwatch/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ ipwatch failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ ipwatch stopped with error: %v", err)
	}
}
