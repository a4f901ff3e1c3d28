package main

import (
	"flag"
	"fmt"

	"github.com/marsevilspirit/greeter/log"
	"github.com/marsevilspirit/greeter/probe"
)

var url = flag.String("url", probe.DefaultURL, "URL to fetch")

func main() {
	flag.Parse()

	body, err := probe.Fetch(*url)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(body)
}
