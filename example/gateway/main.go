package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marsevilspirit/greeter/client"
	"github.com/marsevilspirit/greeter/gateway"
	"github.com/marsevilspirit/greeter/log"
)

var (
	addr       = flag.String("addr", "127.0.0.1:8080", "HTTP listen address")
	serverAddr = flag.String("server", "localhost:50051", "RPC server address")
)

func main() {
	flag.Parse()

	c := client.NewClient(client.Option{Heartbeat: true})
	if err := c.Connect("tcp", *serverAddr); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	g := gateway.New(*addr, c)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.Shutdown(ctx)
	}()

	if err := g.Serve(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}
