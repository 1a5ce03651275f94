package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/realtime-sync/internal/client"
	"github.com/rickgao/realtime-sync/internal/mutation"
	"github.com/rickgao/realtime-sync/internal/protocol"
	"github.com/rickgao/realtime-sync/internal/version"
)

type statusResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Online     bool           `json:"online"`
	Connection connectionView `json:"connection"`
	Outbound   outboundView   `json:"outbound"`
	Mutations  mutationView   `json:"mutations"`
}

type connectionView struct {
	State         string    `json:"state"`
	Attempt       int       `json:"attempt"`
	Abandoned     bool      `json:"abandoned"`
	Connects      int64     `json:"connects"`
	Drops         int64     `json:"drops"`
	LastError     string    `json:"last_error,omitempty"`
	LastConnected time.Time `json:"last_connected,omitzero"`
}

type outboundView struct {
	Pending  int   `json:"pending"`
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

type mutationView struct {
	Pending   int   `json:"pending"`
	Replayed  int64 `json:"replayed"`
	Failures  int64 `json:"failures"`
	Abandoned int64 `json:"abandoned"`
}

type enqueueRequest struct {
	Kind       mutation.Kind   `json:"kind"`
	EntityType string          `json:"entityType"`
	Data       json.RawMessage `json:"data"`
}

type sendRequest struct {
	Type     protocol.Type   `json:"type"`
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload"`
	TargetID string          `json:"targetId"`
}

// newHandler creates the local HTTP API.
func newHandler(c *client.Client, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		st := c.Status()

		resp := statusResponse{
			Status:  "healthy",
			Version: version.String(),
			Online:  st.Online,
			Connection: connectionView{
				State:         st.Connection.State.String(),
				Attempt:       st.Connection.Attempt,
				Abandoned:     st.Connection.Abandoned,
				Connects:      st.Connection.Connects,
				Drops:         st.Connection.Drops,
				LastError:     st.Connection.LastError,
				LastConnected: st.Connection.LastConnected,
			},
			Outbound: outboundView{
				Pending:  st.Router.Pending,
				Sent:     st.Router.MessagesSent,
				Received: st.Router.MessagesReceived,
			},
			Mutations: mutationView{
				Pending:   st.Mutations.Pending,
				Replayed:  st.Mutations.Replayed,
				Failures:  st.Mutations.Failures,
				Abandoned: st.Mutations.Abandoned,
			},
		}
		if !c.IsConnected() || !st.Online {
			resp.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, resp)
	}).Methods(http.MethodGet)

	r.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
		defer cancel()

		res, err := c.ManualSync(ctx)
		if errors.Is(err, mutation.ErrOffline) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		if err != nil {
			logger.Error("manual sync failed", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}).Methods(http.MethodPost)

	r.HandleFunc("/mutations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.PendingMutations())
	}).Methods(http.MethodGet)

	r.HandleFunc("/mutations", func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var data any
		if len(req.Data) > 0 {
			data = req.Data
		}
		id, err := c.EnqueueMutation(r.Context(), req.Kind, req.EntityType, data)
		switch {
		case errors.Is(err, mutation.ErrInvalidKind),
			errors.Is(err, mutation.ErrMissingEntityType),
			errors.Is(err, mutation.ErrInvalidData):
			writeError(w, http.StatusBadRequest, err)
			return
		case err != nil:
			logger.Error("enqueue failed", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
	}).Methods(http.MethodPost)

	r.HandleFunc("/mutations", func(w http.ResponseWriter, r *http.Request) {
		if err := c.ClearMutations(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Type == "" {
			writeError(w, http.StatusBadRequest, protocol.ErrMissingType)
			return
		}

		var payload any
		if len(req.Payload) > 0 {
			payload = req.Payload
		}
		if err := c.Send(req.Type, req.Action, payload, req.TargetID); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"connected": c.IsConnected()})
	}).Methods(http.MethodPost)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
