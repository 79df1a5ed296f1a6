package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bonds"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/engine"
)

// Request is the decoded form of one framed message. Every action reads
// the subset of fields it needs and ignores the rest.
type Request struct {
	Action string `json:"action"`

	Text    string `json:"text,omitempty"`
	File    string `json:"file,omitempty"`
	Name    string `json:"name,omitempty"`
	Century string `json:"century,omitempty"`
	DocID   string `json:"doc_id,omitempty"`
	Token   string `json:"token,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
	Catalog  map[string]any `json:"catalog,omitempty"`
	Set      map[string]any `json:"set,omitempty"`
	Remove   []string       `json:"remove,omitempty"`

	MaxChars int `json:"max_chars,omitempty"`
}

// DefaultCentury is used when an ingest request does not date its document.
const DefaultCentury = "AB"

func errorPayload(err error) []byte {
	payload, mErr := json.Marshal(map[string]string{
		"status":  "error",
		"message": err.Error(),
	})
	if mErr != nil {
		return []byte(`{"status":"error","message":"internal encoding failure"}`)
	}
	return payload
}

func (s *Server) dispatch(payload []byte) []byte {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorPayload(errors.Wrap(err, "decoding request"))
	}
	result, err := s.handle(&req)
	if err != nil {
		klog.V(1).Infof("server: %s failed: %v", req.Action, err)
		return errorPayload(err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return errorPayload(errors.Wrapf(err, "encoding %s response", req.Action))
	}
	return out
}

func (s *Server) handle(req *Request) (any, error) {
	switch req.Action {
	case "health":
		return s.handleHealth()
	case "ingest":
		return s.handleIngest(req)
	case "retrieve":
		return s.handleRetrieve(req)
	case "tokenize":
		return s.handleTokenize(req)
	case "list":
		return s.handleList()
	case "info":
		return s.handleInfo(req)
	case "update_meta":
		return s.handleUpdateMeta(req)
	case "bonds":
		return s.handleBonds(req)
	case "phys_resolve":
		return s.handlePhysResolve(req)
	case "":
		return nil, errors.New("request has no action")
	default:
		return nil, errors.Errorf("unknown action %q", req.Action)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	engine.Health
}

func (s *Server) handleHealth() (any, error) {
	health, err := s.eng.CheckHealth()
	if err != nil {
		return nil, err
	}
	return healthResponse{Status: "ok", Health: health}, nil
}

type ingestResponse struct {
	Status string `json:"status"`
	engine.IngestResult
	Millis int64 `json:"ms"`
}

func (s *Server) handleIngest(req *Request) (any, error) {
	text := req.Text
	name := req.Name
	if req.File != "" {
		raw, err := os.ReadFile(req.File)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", req.File)
		}
		text = string(raw)
		if name == "" {
			name = filepath.Base(req.File)
		}
	}
	if text == "" {
		return nil, errors.New("ingest needs text or file")
	}
	if name == "" {
		name = "untitled"
	}
	century := req.Century
	if century == "" {
		century = DefaultCentury
	}
	metadata := req.Metadata
	for k, v := range req.Catalog {
		if metadata == nil {
			metadata = make(map[string]any, len(req.Catalog))
		}
		metadata[k] = v
	}
	start := time.Now()
	result, err := s.eng.ProcessText(text, name, century, metadata)
	if err != nil {
		return nil, err
	}
	return ingestResponse{
		Status:       "ok",
		IngestResult: result,
		Millis:       time.Since(start).Milliseconds(),
	}, nil
}

type retrieveResponse struct {
	Status     string `json:"status"`
	DocID      string `json:"doc_id"`
	Text       string `json:"text"`
	Tokens     int    `json:"tokens"`
	LoadMillis int64  `json:"load_ms"`
	Millis     int64  `json:"ms"`
}

func (s *Server) handleRetrieve(req *Request) (any, error) {
	if req.DocID == "" {
		return nil, errors.New("retrieve needs doc_id")
	}
	start := time.Now()
	result, err := s.eng.Retrieve(req.DocID)
	if err != nil {
		return nil, err
	}
	return retrieveResponse{
		Status:     "ok",
		DocID:      req.DocID,
		Text:       result.Text,
		Tokens:     result.Tokens,
		LoadMillis: result.LoadMillis,
		Millis:     time.Since(start).Milliseconds(),
	}, nil
}

type tokenizeResponse struct {
	Status     string   `json:"status"`
	Tokens     []string `json:"tokens"`
	Positions  []int64  `json:"positions"`
	TotalSlots int64    `json:"total_slots"`
	Unique     int      `json:"unique"`
	Bonds      int      `json:"bonds"`
	TotalPairs int64    `json:"total_pairs"`
	Millis     int64    `json:"ms"`
}

func (s *Server) handleTokenize(req *Request) (any, error) {
	if req.Text == "" {
		return nil, errors.New("tokenize needs text")
	}
	start := time.Now()
	stream := s.eng.Tokenize(req.Text)
	table := bonds.New(bonds.LevelWordWord)
	table.AddStream(stream.IDs)
	seen := make(map[string]struct{}, len(stream.IDs))
	for _, id := range stream.IDs {
		seen[id] = struct{}{}
	}
	return tokenizeResponse{
		Status:     "ok",
		Tokens:     stream.IDs,
		Positions:  stream.Positions,
		TotalSlots: stream.TotalSlots,
		Unique:     len(seen),
		Bonds:      table.Len(),
		TotalPairs: table.Total(),
		Millis:     time.Since(start).Milliseconds(),
	}, nil
}

func (s *Server) handleList() (any, error) {
	docs, err := s.eng.ListDocuments()
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "documents": docs}, nil
}

func (s *Server) handleInfo(req *Request) (any, error) {
	if req.DocID == "" {
		return nil, errors.New("info needs doc_id")
	}
	info, err := s.eng.Info(req.DocID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "info": info}, nil
}

type updateMetaResponse struct {
	Status        string `json:"status"`
	FieldsSet     int    `json:"fields_set"`
	FieldsRemoved int    `json:"fields_removed"`
}

func (s *Server) handleUpdateMeta(req *Request) (any, error) {
	if req.DocID == "" {
		return nil, errors.New("update_meta needs doc_id")
	}
	if len(req.Set) == 0 && len(req.Remove) == 0 {
		return nil, errors.New("update_meta needs set or remove")
	}
	set, removed, err := s.eng.UpdateMetadata(req.DocID, req.Set, req.Remove)
	if err != nil {
		return nil, err
	}
	return updateMetaResponse{Status: "ok", FieldsSet: set, FieldsRemoved: removed}, nil
}

func (s *Server) handleBonds(req *Request) (any, error) {
	if req.DocID == "" {
		return nil, errors.New("bonds needs doc_id")
	}
	rows, err := s.eng.BondsForToken(req.DocID, req.Token)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "bonds": rows}, nil
}

type physRunResponse struct {
	Text     string   `json:"text"`
	Word     string   `json:"word,omitempty"`
	TokenIDs []string `json:"token_ids,omitempty"`
	Resolved bool     `json:"resolved"`
	NoVocab  bool     `json:"no_vocab,omitempty"`
}

type physResolveResponse struct {
	Status  string            `json:"status"`
	Results []physRunResponse `json:"results"`

	// Phase-1 counters summarize run extraction and settlement.
	Phase1Runs       int `json:"phase1_runs"`
	Phase1Resolved   int `json:"phase1_resolved"`
	Phase1Unresolved int `json:"phase1_unresolved"`
	Phase1NoVocab    int `json:"phase1_no_vocab"`

	Millis int64 `json:"ms"`
}

func (s *Server) handlePhysResolve(req *Request) (any, error) {
	text := req.Text
	if text == "" {
		return nil, errors.New("phys_resolve needs text")
	}
	if req.MaxChars > 0 && len(text) > req.MaxChars {
		text = text[:req.MaxChars]
	}
	start := time.Now()
	results, err := s.eng.PhysResolve(text)
	if err != nil {
		return nil, err
	}
	resp := physResolveResponse{
		Status:     "ok",
		Results:    make([]physRunResponse, 0, len(results)),
		Phase1Runs: len(results),
		Millis:     time.Since(start).Milliseconds(),
	}
	for _, res := range results {
		if res.Resolved {
			resp.Phase1Resolved++
		} else {
			resp.Phase1Unresolved++
		}
		if res.NoVocab {
			resp.Phase1NoVocab++
		}
		resp.Results = append(resp.Results, physRunResponse{
			Text:     res.Run.Text,
			Word:     res.Word,
			TokenIDs: res.TokenIDs,
			Resolved: res.Resolved,
			NoVocab:  res.NoVocab,
		})
	}
	return resp, nil
}
