package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

type feature struct {
	ID         string     `json:"id"`
	Properties properties `json:"properties"`
	Geometry   geometry   `json:"geometry"`
}

type properties struct {
	Mag    float64 `json:"mag"`
	Place  string  `json:"place"`
	Time   int64   `json:"time"`
	Status string  `json:"status"`
	Net    string  `json:"net"`
	URL    string  `json:"url"`
}

type geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

var places = []string{
	"12km SE of Ridgecrest, CA",
	"5km N of Parkfield, CA",
	"30km W of Petrolia, CA",
	"18km NNE of Pahala, Hawaii",
	"98km S of Sand Point, Alaska",
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/fdsnws/event/1/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Query().Get("format") != "geojson" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("only format=geojson is supported"))
			return
		}

		limit := 25
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		minMag := 0.0
		if v := r.URL.Query().Get("minmagnitude"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				minMag = f
			}
		}

		writeJSON(w, map[string]any{
			"type":     "FeatureCollection",
			"features": randomFeatures(limit, minMag),
		})
	})

	logger := log.New(log.Writer(), "usgs-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8081",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8081")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func randomFeatures(limit int, minMag float64) []feature {
	features := make([]feature, 0, limit)
	now := time.Now()
	for i := 0; i < limit; i++ {
		mag := minMag + rand.Float64()*(9.0-minMag)
		features = append(features, feature{
			ID: "mock" + strconv.Itoa(i),
			Properties: properties{
				Mag:    mag,
				Place:  places[i%len(places)],
				Time:   now.Add(-time.Duration(i) * 6 * time.Hour).UnixMilli(),
				Status: "automatic",
				Net:    "us",
				URL:    "https://earthquake.usgs.gov/earthquakes/eventpage/mock" + strconv.Itoa(i),
			},
			Geometry: geometry{
				Type:        "Point",
				Coordinates: []float64{-125 + rand.Float64()*10, 32 + rand.Float64()*10, rand.Float64() * 30},
			},
		})
	}
	return features
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
