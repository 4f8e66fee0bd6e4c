package msnptest

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// Ticket is the Passport ticket every NexusServer login hands out.
const Ticket = "aaa123aaa123"

// NexusServer answers the two Passport 1.4 GETs: the nexus redirect pointing
// at its own login URL, and the login itself, which always succeeds with
// Ticket.
func NexusServer(t testing.TB) *httptest.Server {
	var srv *httptest.Server

	mux := http.NewServeMux()
	mux.HandleFunc("/rdr/pprdr.asp", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("PassportURLs", "DALogin="+srv.URL+"/login.srf")
	})
	mux.HandleFunc("/login.srf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Authentication-Info",
			"Passport1.4 da-status=success,from-PP='"+Ticket+"'")
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
