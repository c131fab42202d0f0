package main

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/fuite/fuite"
)

// newAdminRouter builds the operator API. When token is empty every
// /api route is open; otherwise a Bearer token is required. /healthz is
// always unauthenticated for probes.
func newAdminRouter(svc *fuite.Service, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if token != "" {
			r.Use(requireToken(token))
		}

		r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, svc.Status())
		})

		r.Get("/api/rules", func(w http.ResponseWriter, _ *http.Request) {
			set := svc.Rules()
			type ruleView struct {
				Search      string `json:"search"`
				Include     string `json:"include,omitempty"`
				Exclude     string `json:"exclude,omitempty"`
				Description string `json:"description"`
				MinCount    int    `json:"min_count"`
			}
			out := struct {
				Generation int64      `json:"generation"`
				Rules      []ruleView `json:"rules"`
			}{Generation: set.Generation()}
			for _, rl := range set.Rules() {
				out.Rules = append(out.Rules, ruleView{
					Search:      rl.Search,
					Include:     rl.Include,
					Exclude:     rl.Exclude,
					Description: rl.Description,
					MinCount:    rl.MinCount,
				})
			}
			writeJSON(w, 200, out)
		})

		r.Get("/api/incidents", func(w http.ResponseWriter, r *http.Request) {
			limit := queryInt(r, "limit", 50)
			list, err := svc.RecentIncidents(r.Context(), limit)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, list)
		})

		r.Post("/api/reload", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.Reload(r.Context()); err != nil {
				writeError(w, 500, err)
				return
			}
			set := svc.Rules()
			writeJSON(w, 200, map[string]any{
				"generation": set.Generation(),
				"rules":      set.Len(),
				"proxies":    len(svc.Proxies()),
			})
		})
	})

	return r
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
