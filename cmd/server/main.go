package main

import (
	"flag"
	"log"

	approuters "github.com/Psyodrz/SkillSynergy-sub001/internal/app_routers"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/configuration"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	container, err := configuration.BuildContainer(*configPath)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	// Setup routers
	approuters.StartServer(container)
}
