//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package route

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/log"
)

// readRequestBody decodes a JSON request body into Req, mapping any
// malformed body to a BadRequest.
func readRequestBody[Req any](r *http.Request) (Req, error) {
	var req Req
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, apierr.Wrap(err, "failed to read request body")
	}
	if len(body) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, apierr.New(apierr.BadRequest, "malformed JSON body")
	}
	return req, nil
}

// respond writes v as a JSON body with the given status code.
func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Log().Error("respond", "msg", "failed to encode response body", "err", err.Error())
	}
}

// respondError maps err onto the JSON error envelope and its HTTP status. A
// plain, non-apierr error is treated as Internal and never echoes its cause
// to the client.
func respondError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierr.Wrap(err, "internal error")
	}

	detail := apiErr.Detail
	if apiErr.Kind == apierr.Internal {
		detail = "internal error"
	}

	respond(w, apierr.Status(apiErr.Kind), entity.ErrorResponse{
		Error:  string(apiErr.Kind),
		Detail: detail,
	})
}

// fallback answers unmatched routes with a 404 and an audit log line.
func fallback(w http.ResponseWriter, r *http.Request) {
	const fName = "fallback"
	entry := log.AuditEntry{TrailID: log.NewTrailID(), Timestamp: time.Now().UTC()}
	log.AuditRequest(fName, r, &entry, log.AuditFallback)
	respond(w, http.StatusNotFound, entity.ErrorResponse{Error: "not_found", Detail: "no such route"})
	entry.State = log.AuditErrored
	log.Audit(entry)
}
