package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/termsub/internal/observe"
	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/transcript"
)

const codeInvalidRequest = "INVALID_REQUEST"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type listResponse struct {
	Entries []terms.Entry `json:"entries"`
}

type replaceRequest struct {
	Text         string `json:"text"`
	Partial      bool   `json:"partial"`
	SummaryLimit int    `json:"summary_limit"`
}

type replaceResponse struct {
	Text    string             `json:"text"`
	Changes []terms.Change     `json:"changes"`
	Summary transcript.Summary `json:"summary"`
}

type transcriptRequest struct {
	Segments     []transcript.Segment `json:"segments"`
	Partial      bool                 `json:"partial"`
	SummaryLimit int                  `json:"summary_limit"`
}

type transcriptResponse struct {
	transcript.Result
	Summary transcript.Summary `json:"summary"`
}

func (s *Server) listTerms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Entries: s.catalog.List()})
}

func (s *Server) termStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Stats())
}

func (s *Server) getTerm(w http.ResponseWriter, r *http.Request) {
	e, err := s.catalog.Get(chi.URLParam(r, "id"))
	if errors.Is(err, terms.ErrNotFound) {
		writeError(w, http.StatusNotFound, string(terms.CodeNotFound), err.Error())
		return
	}
	if err != nil {
		observe.LoggerFrom(r.Context(), s.log).Error("get term", "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	text, changes := s.pipeline.Apply(r.Context(), req.Text, req.Partial)
	writeJSON(w, http.StatusOK, replaceResponse{
		Text:    text,
		Changes: changes,
		Summary: transcript.Summarize(changes, req.SummaryLimit),
	})
}

func (s *Server) transcripts(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := s.pipeline.Process(r.Context(), req.Segments, req.Partial)
	writeJSON(w, http.StatusOK, transcriptResponse{
		Result:  res,
		Summary: transcript.Summarize(res.Changes, req.SummaryLimit),
	})
}

// decodeBody decodes a size-limited JSON request body into v. On failure it
// writes a 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
