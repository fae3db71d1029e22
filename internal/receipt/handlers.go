package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

const maxUploadSize = int64(50 << 20) // 50MB, high-resolution phone photos

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// errorResponse is the body of every failed API call
type errorResponse struct {
	Error  string                    `json:"error"`
	Kind   ErrorKind                 `json:"kind,omitempty"`
	Stage  Stage                     `json:"stage,omitempty"`
	Text   string                    `json:"text,omitempty"`
	Record *scanning.CandidateRecord `json:"record,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}

// handleUploadReceipt runs an uploaded receipt through the pipeline
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	media := scanning.RawMedia{
		Data:     data,
		MIMEType: strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type"))),
		Filename: header.Filename,
	}

	result, err := s.service.ProcessReceipt(r.Context(), media)
	if err != nil {
		var perr *PipelineError
		if !errors.As(err, &perr) {
			slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		code := http.StatusUnprocessableEntity
		if perr.Retryable() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, errorResponse{
			Error:  perr.Err.Error(),
			Kind:   perr.Kind,
			Stage:  perr.Stage,
			Text:   perr.Text,
			Record: perr.Record,
		})
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleLedger returns all entries and the remaining budget
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Ledger(r.Context())
	if err != nil {
		slog.Error("Error reading ledger", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Ledger is unavailable")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExportLedger streams the ledger as an Excel workbook
func (s *Server) handleExportLedger(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Ledger(r.Context())
	if err != nil {
		slog.Error("Error reading ledger", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Ledger is unavailable")
		return
	}

	var buf bytes.Buffer
	if err := ledger.WriteXLSX(&buf, summary.Entries, summary.Remaining); err != nil {
		slog.Error("Error exporting ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "Error exporting ledger")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.xlsx"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Error writing export", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}
