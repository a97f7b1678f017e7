package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"example.com/bt-fleet/internal/agent"
)

func main() {
	cfgPath := os.Getenv("AGENT_CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = agent.DefaultConfigPath
	}
	cfg, err := agent.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("agent %s starting, broker %s", cfg.AgentID, cfg.MQTTBroker)
	agent.NewEngine(cfg).Run(ctx)
	log.Println("shutting down agent")
}
