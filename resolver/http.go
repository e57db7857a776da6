package resolver

import (
	"encoding/json"
	"net/http"
)

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the resolver HTTP server on addr, serving handler
// (normally svc.Router(), optionally extended by the caller with extra
// routes like /metrics).
func ListenAndServe(addr string, svc *Service, handler http.Handler) error {
	if handler == nil {
		handler = svc.Router()
	}
	server := &http.Server{Addr: addr, Handler: handler}
	return server.ListenAndServe()
}
