// Package webservice is the small HTTP service the probe talks to. It is
// plain HTTP and unrelated to the RPC protocol.
package webservice

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// DefaultAddress is where the web service listens.
const DefaultAddress = "127.0.0.1:5000"

// Handler serves:
//
//	GET  /             index
//	GET  /hello/:param hello <param>
//	POST /hello/:user  hello <user>
func Handler() http.Handler {
	router := httprouter.New()
	router.GET("/", index)
	router.GET("/hello/:param", hello("param"))
	router.POST("/hello/:user", hello("user"))
	return router
}

func index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "index")
}

func hello(param string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "hello %s", ps.ByName(param))
	}
}
