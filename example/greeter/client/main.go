package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/marsevilspirit/greeter/client"
	"github.com/marsevilspirit/greeter/greeter"
	"github.com/marsevilspirit/greeter/log"
)

var (
	addr    = flag.String("addr", "localhost:50051", "server address")
	name    = flag.String("name", "you", "name to greet")
	caFile  = flag.String("ca", "", "CA certificate to verify a TLS server with; plain TCP when empty")
	timeout = flag.Duration("timeout", 5*time.Second, "call timeout")
)

func main() {
	flag.Parse()

	option := client.DefaultOption
	if *caFile != "" {
		pem, err := os.ReadFile(*caFile)
		if err != nil {
			log.Fatalf("failed to read CA: %v", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			log.Fatalf("no certificates in %s", *caFile)
		}
		option.TLSConfig = &tls.Config{RootCAs: pool}
	}

	c := client.NewClient(option)
	if err := c.Connect("tcp", *addr); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := greeter.NewGreeterClient(c).SayHello(ctx, &greeter.HelloRequest{Name: *name})
	if err != nil {
		log.Fatalf("failed to call: %v", err)
	}

	fmt.Println("Greeter client received: " + reply.Message)
}
