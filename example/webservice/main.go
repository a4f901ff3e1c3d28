package main

import (
	"flag"
	"net/http"

	"github.com/marsevilspirit/greeter/log"
	"github.com/marsevilspirit/greeter/webservice"
)

var addr = flag.String("addr", webservice.DefaultAddress, "listen address")

func main() {
	flag.Parse()

	log.Infof("web service listening on %s", *addr)
	if err := http.ListenAndServe(*addr, webservice.Handler()); err != nil {
		log.Fatalf("web service: %v", err)
	}
}
