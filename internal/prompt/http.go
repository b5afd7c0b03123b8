package prompt

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrWong99/stagehand/internal/observe"
)

const maxBodyBytes = 64 << 10

type pushResponse struct {
	Queued  bool `json:"queued"`
	Pending int  `json:"pending"`
}

// Handler returns an HTTP handler that accepts a JSON [Prompt] via POST and
// pushes it onto q. It answers 202 Accepted; blank prompts are accepted but
// not queued.
func Handler(q *Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var p Prompt
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid prompt: "+err.Error(), http.StatusBadRequest)
			return
		}

		queued := q.Push(p)
		observe.Logger(r.Context()).Debug("prompt: received over http", "queued", queued)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(pushResponse{Queued: queued, Pending: q.Len()})
	})
}
