package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/template"
	"github.com/FocuswithJustin/LegacyBridge/internal/ffi"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Document is the input of the single-document endpoints. Content is text
// unless Encoding is "base64", which carries 8-bit RTF unchanged.
type Document struct {
	Content  string            `json:"content"`
	Encoding string            `json:"encoding,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	Document
	Direction string `json:"direction"`
}

// ValidateRequest is the body of POST /validate. An empty format is
// detected from the content.
type ValidateRequest struct {
	Document
	Format string `json:"format,omitempty"`
}

// ApplyTemplateRequest is the body of POST /apply-template.
type ApplyTemplateRequest struct {
	Document
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables,omitempty"`
}

// TemplateRequest is the body of POST /templates. Definition is YAML or
// XML; Name, when set, overrides the name inside it.
type TemplateRequest struct {
	Name       string `json:"name,omitempty"`
	Definition string `json:"definition"`
	Overwrite  bool   `json:"overwrite,omitempty"`
}

// ConvertResult is the output of a single-document operation.
type ConvertResult struct {
	Output   string         `json:"output"`
	Encoding string         `json:"encoding,omitempty"`
	Report   *report.Report `json:"report"`
}

// TemplateInfo describes a registered template.
type TemplateInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Variables   []string         `json:"variables,omitempty"`
	Definition  string           `json:"definition,omitempty"`
	Findings    []report.Finding `json:"findings,omitempty"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Templates int    `json:"templates"`
	Jobs      int    `json:"jobs"`
	Clients   int    `json:"websocket_clients"`
}

// requestOverhead is allowed on top of the input size limit for JSON
// framing and base64.
const requestOverhead = 1 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	endpoints := []string{
		"GET /health",
		"POST /convert",
		"POST /validate",
		"POST /apply-template",
		"GET /templates",
		"POST /templates",
		"GET /templates/:name",
		"DELETE /templates/:name",
		"GET /jobs",
		"POST /jobs",
		"GET /jobs/:id",
		"DELETE /jobs/:id",
		"WS /ws",
	}
	for path := range operations {
		endpoints = append(endpoints, "POST "+path)
	}
	sort.Strings(endpoints)
	respond(w, http.StatusOK, map[string]any{
		"name":       "LegacyBridge API",
		"version":    ffi.Version,
		"directions": []pipeline.Direction{pipeline.DirRTFToMarkdown, pipeline.DirMarkdownToRTF},
		"endpoints":  endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	respond(w, http.StatusOK, HealthInfo{
		Status:    "healthy",
		Version:   ffi.Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Templates: s.pipe.Templates().Len(),
		Jobs:      len(s.jobs.List()),
		Clients:   s.hub.ClientCount(),
	})
}

// decode reads a JSON body of at most the input limit plus overhead.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return false
	}
	limit := int64(s.pipe.Config().Limits.MaxFileSize)*2 + requestOverhead
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		respondError(w, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("Invalid JSON body: %v", err))
		return false
	}
	if dec.More() {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Trailing data after JSON body")
		return false
	}
	return true
}

// input returns the document bytes and the pipeline its options select.
func (s *Server) input(d Document) ([]byte, *pipeline.Pipeline, error) {
	var data []byte
	switch strings.ToLower(d.Encoding) {
	case "", "text", "utf-8", "utf8":
		data = []byte(d.Content)
	case "base64":
		b, err := base64.StdEncoding.DecodeString(d.Content)
		if err != nil {
			return nil, nil, errors.NewValidation("content", "invalid base64: "+err.Error())
		}
		data = b
	default:
		return nil, nil, errors.NewValidation("encoding", fmt.Sprintf("unknown encoding %q", d.Encoding))
	}
	p, err := s.pipelineFor(d.Options)
	return data, p, err
}

// pipelineFor applies request options on top of the server configuration.
func (s *Server) pipelineFor(options map[string]string) (*pipeline.Pipeline, error) {
	if len(options) == 0 {
		return s.pipe, nil
	}
	cfg := s.pipe.Config()
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cfg.Set(k, options[k]); err != nil {
			return nil, err
		}
	}
	return s.pipe.WithConfig(cfg), nil
}

func encodeOutput(out []byte, encoding string) ConvertResult {
	if strings.EqualFold(encoding, "base64") {
		return ConvertResult{Output: base64.StdEncoding.EncodeToString(out), Encoding: "base64"}
	}
	return ConvertResult{Output: string(out)}
}

// respondResult writes a pipeline result. A failed conversion is reported
// with its error status and the report as data.
func respondResult(w http.ResponseWriter, res *pipeline.Result, err error, encoding string) {
	if err != nil {
		status, code := errorStatus(err)
		var data any
		if res != nil {
			data = ConvertResult{Report: res.Report}
		}
		respondErrorData(w, status, code, err.Error(), data)
		return
	}
	out := encodeOutput(res.Output, encoding)
	out.Report = res.Report
	respond(w, http.StatusOK, out)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if !s.decode(w, r, &req) {
		return
	}
	dir, err := pipeline.ParseDirection(req.Direction)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_DIRECTION", err.Error())
		return
	}
	data, p, err := s.input(req.Document)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	res, err := p.Convert(r.Context(), dir, data)
	respondResult(w, res, err, req.Encoding)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	var format ir.Format
	if req.Format != "" {
		f, err := ir.ParseFormat(req.Format)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
			return
		}
		format = f
	}
	data, p, err := s.input(req.Document)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	respond(w, http.StatusOK, p.Validate(r.Context(), data, format))
}

// operation is a single-document pipeline operation.
type operation func(p *pipeline.Pipeline, ctx context.Context, input []byte) (*pipeline.Result, error)

var operations = map[string]operation{
	"/extract/text":       (*pipeline.Pipeline).ExtractPlainText,
	"/extract/tables":     (*pipeline.Pipeline).ExtractTablesCSV,
	"/normalize/markdown": (*pipeline.Pipeline).NormalizeMarkdown,
	"/clean/rtf":          (*pipeline.Pipeline).CleanRTF,
}

func (s *Server) handleOperation(op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Document
		if !s.decode(w, r, &req) {
			return
		}
		data, p, err := s.input(req)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		res, err := op(p, r.Context(), data)
		respondResult(w, res, err, req.Encoding)
	}
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req ApplyTemplateRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, p, err := s.input(req.Document)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	res, err := p.ApplyTemplate(r.Context(), data, req.Template, req.Variables)
	respondResult(w, res, err, req.Encoding)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		reg := s.pipe.Templates()
		names := reg.List()
		infos := make([]TemplateInfo, 0, len(names))
		for _, name := range names {
			t, err := reg.Get(name)
			if err != nil {
				continue // removed concurrently
			}
			infos = append(infos, templateInfo(t))
		}
		respondList(w, infos, len(infos))
	case http.MethodPost:
		s.createTemplate(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

func templateInfo(t *template.Template) TemplateInfo {
	vars := make([]string, 0, len(t.Variables))
	for k := range t.Variables {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	return TemplateInfo{Name: t.Name, Description: t.Description, Variables: vars}
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !s.decode(w, r, &req) {
		return
	}
	def, err := template.Load([]byte(req.Definition))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_TEMPLATE", err.Error())
		return
	}
	if req.Name != "" {
		def.Name = req.Name
	}
	if def.Name != "" {
		if err := ValidateID(def.Name); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_NAME", err.Error())
			return
		}
	}

	reg := s.pipe.Templates()
	if s.store != nil {
		err = template.RegisterAndSave(r.Context(), reg, s.store, def, req.Overwrite)
	} else {
		err = reg.Register(def, req.Overwrite)
	}
	if err != nil {
		status, code := errorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	logging.Info("template registered", "name", def.Name, "persisted", s.store != nil)

	t, _ := reg.Get(def.Name)
	info := templateInfo(t)
	info.Findings = t.Validate()
	respond(w, http.StatusCreated, info)
}

func (s *Server) handleTemplateByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/templates/")
	if err := ValidateID(name); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_NAME", err.Error())
		return
	}

	reg := s.pipe.Templates()
	switch r.Method {
	case http.MethodGet:
		t, err := reg.Get(name)
		if err != nil {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		yml, err := template.MarshalYAML(t.Definition)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		info := templateInfo(t)
		info.Definition = string(yml)
		info.Findings = t.Validate()
		respond(w, http.StatusOK, info)

	case http.MethodDelete:
		if err := reg.Remove(name); err != nil {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		if s.store != nil {
			if err := s.store.Delete(r.Context(), name); err != nil && !template.IsNotFound(err) {
				respondError(w, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
				return
			}
		}
		respond(w, http.StatusOK, map[string]string{"message": "Template deleted"})

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		respondList(w, jobs, len(jobs))
	case http.MethodPost:
		s.createJob(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if !s.decode(w, r, &req) {
		return
	}
	dir, err := pipeline.ParseDirection(req.Direction)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_DIRECTION", err.Error())
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "documents are required")
		return
	}
	p, err := s.pipelineFor(req.Options)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_OPTIONS", err.Error())
		return
	}

	inputs := make([][]byte, len(req.Documents))
	for i, d := range req.Documents {
		inputs[i] = []byte(d)
	}
	job, err := s.jobs.Create(string(dir), p.NewBatch(dir), len(inputs))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "JOB_STORE_FULL", err.Error())
		return
	}
	s.runJob(job, inputs)
	logging.Info("job created", "job_id", job.ID, "direction", dir, "documents", len(inputs))

	snap, _ := s.jobs.Get(job.ID)
	respond(w, http.StatusCreated, snap)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if err := ValidateID(id); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.jobs.Get(id)
		if !ok {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		respond(w, http.StatusOK, job)

	case http.MethodDelete:
		// Running jobs are cancelled; finished ones are removed.
		job, ok := s.jobs.Get(id)
		if !ok {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		if job.Status.Finished() {
			if err := s.jobs.Delete(id); err != nil {
				respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
				return
			}
			respond(w, http.StatusOK, map[string]string{"message": "Job deleted"})
			return
		}
		if err := s.jobs.Cancel(id); err != nil {
			status, code := errorStatus(err)
			respondError(w, status, code, err.Error())
			return
		}
		respond(w, http.StatusOK, map[string]string{"message": "Job cancelled"})

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}

// errorStatus maps an error to an HTTP status and an error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, errors.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, errors.ErrLimit):
		return http.StatusRequestEntityTooLarge, "LIMIT_EXCEEDED"
	case errors.Is(err, errors.ErrSecurity):
		return http.StatusUnprocessableEntity, "SECURITY_VIOLATION"
	case errors.Is(err, errors.ErrSyntax), errors.Is(err, errors.ErrEncoding):
		return http.StatusUnprocessableEntity, "CONVERSION_FAILED"
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func respond(w http.ResponseWriter, status int, data any) {
	write(w, status, APIResponse{Success: true, Data: data, Meta: meta(0)})
}

func respondList(w http.ResponseWriter, data any, total int) {
	write(w, http.StatusOK, APIResponse{Success: true, Data: data, Meta: meta(total)})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorData(w, status, code, message, nil)
}

func respondErrorData(w http.ResponseWriter, status int, code, message string, data any) {
	write(w, status, APIResponse{
		Success: false,
		Data:    data,
		Error:   &APIError{Code: code, Message: message},
		Meta:    meta(0),
	})
}

func meta(total int) *APIMeta {
	return &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func write(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil && err != io.ErrClosedPipe {
		logging.Debug("response write failed", "error", err)
	}
}
