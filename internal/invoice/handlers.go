package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/talhazulfakhri/invoice-intel/internal/extraction"
)

// UploadFailure reports one skipped or failed file from a batch upload
type UploadFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResponse is the result of a batch upload: created records plus
// per-file failures, in upload order
type UploadResponse struct {
	Records  []*Record       `json:"records"`
	Failures []UploadFailure `json:"failures"`
}

// EditRequest is the body of a PATCH edit command
type EditRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	setCORSHeaders(w)
	writeJSON(w, status, map[string]string{"error": message})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// sniffContentType fills in the Content-Type from the file extension when the
// part header is missing or carries the multipart writer's default. Standard
// clients stamp application/octet-stream when the caller did not set a type,
// so it is no more informative than an empty header.
func sniffContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		default:
			contentType = "application/octet-stream"
		}
	}
	return contentType
}

// handleUploadInvoices processes a multi-file upload. Each file runs the
// pipeline independently: a rejected or failed file is reported in the
// response and the remaining files continue.
func (s *Server) handleUploadInvoices(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)

	// Per-file limits are enforced in the service; this bounds the request
	maxFormSize := s.service.MaxUploadBytes()*8 + (1 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeJSONError(w, http.StatusBadRequest, "Error parsing upload form")
		return
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = append(headers, r.MultipartForm.File["files"]...)
		headers = append(headers, r.MultipartForm.File["file"]...)
	}
	if len(headers) == 0 {
		writeJSONError(w, http.StatusBadRequest, "No files were provided. Please choose at least one image.")
		return
	}

	response := UploadResponse{
		Records:  []*Record{},
		Failures: []UploadFailure{},
	}

	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "filename", header.Filename, "error", err)
			response.Failures = append(response.Failures, UploadFailure{header.Filename, "Error reading file"})
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			slog.Error("Error reading uploaded file", "filename", header.Filename, "error", err)
			response.Failures = append(response.Failures, UploadFailure{header.Filename, "Error reading file"})
			continue
		}

		record, err := s.service.ProcessUpload(r.Context(), session, header.Filename, data, sniffContentType(header))
		if err != nil {
			response.Failures = append(response.Failures, UploadFailure{header.Filename, err.Error()})
			continue
		}
		response.Records = append(response.Records, record)
	}

	setCORSHeaders(w)
	status := http.StatusOK
	if len(response.Records) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, response)
}

// handleListRecords returns the session ledger in upload order
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if session := s.lookupSession(r); session != nil {
		writeJSON(w, http.StatusOK, session.Records())
		return
	}
	writeJSON(w, http.StatusOK, []*Record{})
}

// handleEditRecord applies one field edit to one record
func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	session := s.lookupSession(r)
	if session == nil {
		writeJSONError(w, http.StatusNotFound, "Record not found")
		return
	}
	id := r.PathValue("id")

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := s.service.EditField(session, id, req.Field, req.Value)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		writeJSONError(w, http.StatusNotFound, "Record not found")
		return
	case errors.Is(err, ErrEditRejected):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("Error editing record", "record_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteRecord removes a record from the ledger
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	session := s.lookupSession(r)
	if session == nil {
		writeJSONError(w, http.StatusNotFound, "Record not found")
		return
	}
	id := r.PathValue("id")

	if err := s.service.DeleteRecord(session, id); err != nil {
		writeJSONError(w, http.StatusNotFound, "Record not found")
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetRecordImage serves the retained upload bytes for a record
func (s *Server) handleGetRecordImage(w http.ResponseWriter, r *http.Request) {
	session := s.lookupSession(r)
	if session == nil {
		writeJSONError(w, http.StatusNotFound, "Image not found")
		return
	}
	id := r.PathValue("id")

	image, err := session.Image(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Image not found")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", image.ContentType)
	w.Write(image.Data)
}

// handleExport streams the ledger as an XLSX download. An encoder failure
// leaves the ledger intact for retry.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	session := s.lookupSession(r)

	data, err := s.service.ExportLedger(session)
	if err != nil {
		slog.Error("Error exporting ledger", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Export failed, please try again")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoice_report.xlsx"`)
	w.Write(data)
}

// handleListCategories returns the category taxonomy for UI selects
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, extraction.Categories())
}

// handleResetSession discards the session ledger and its images
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.service.Sessions().Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
