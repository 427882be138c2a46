// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Transport: Writing response: %v", err)
	}
}

func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
