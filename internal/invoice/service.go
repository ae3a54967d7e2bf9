package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talhazulfakhri/invoice-intel/internal/extraction"
)

// ErrIntakeRejected is returned when an uploaded file fails type or size
// validation. The file is skipped; other files in the same upload continue.
var ErrIntakeRejected = errors.New("file rejected")

// ErrEditRejected is returned when a manual edit fails field validation. The
// stored record is left unchanged.
var ErrEditRejected = errors.New("edit rejected")

// FieldInvoiceNumber complements the extraction field names for edits
const FieldInvoiceNumber = "invoice_number"

// DefaultMaxUploadBytes caps a single uploaded image (10MB)
const DefaultMaxUploadBytes = 10 << 20

// allowedMIMETypes is the intake contract: JPEG and PNG only
var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the upload, extract, parse, edit, and export pipeline on top
// of per-session ledgers
type Service struct {
	extractor      extraction.Extractor
	sessions       *Manager
	instruction    string
	maxUploadBytes int64
	idGenerator    IDGenerator
	timeSource     TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(extractor extraction.Extractor, sessions *Manager, instruction string, maxUploadBytes int64) *Service {
	return NewServiceWithDeps(extractor, sessions, instruction, maxUploadBytes, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor extraction.Extractor, sessions *Manager, instruction string, maxUploadBytes int64, idGen IDGenerator, timeSrc TimeSource) *Service {
	if instruction == "" {
		instruction = extraction.DefaultInstruction()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Service{
		extractor:      extractor,
		sessions:       sessions,
		instruction:    instruction,
		maxUploadBytes: maxUploadBytes,
		idGenerator:    idGen,
		timeSource:     timeSrc,
	}
}

// Sessions exposes the session manager
func (s *Service) Sessions() *Manager {
	return s.sessions
}

// MaxUploadBytes returns the per-file upload size limit
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// validateIntake enforces the intake contract for one file
func (s *Service) validateIntake(data []byte, contentType string) error {
	if !allowedMIMETypes[contentType] {
		return fmt.Errorf("%w: unsupported file type %q, only JPEG and PNG are accepted", ErrIntakeRejected, contentType)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return fmt.Errorf("%w: file exceeds the %d byte limit", ErrIntakeRejected, s.maxUploadBytes)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: file is empty", ErrIntakeRejected)
	}
	return nil
}

// ProcessUpload runs one image through intake, extraction, and parsing, and
// appends the resulting record to the session ledger. Failures are isolated
// to the image: an ErrIntakeRejected or extraction error never affects other
// records or the session.
func (s *Service) ProcessUpload(ctx context.Context, session *Session, filename string, data []byte, contentType string) (*Record, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if err := s.validateIntake(data, contentType); err != nil {
		return nil, err
	}

	raw, err := s.extractor.Extract(ctx, data, contentType, s.instruction)
	if err != nil {
		slog.Error("Extraction failed",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}

	fields := extraction.ParseInvoice(raw)
	now := s.timeSource.Now()

	record := &Record{
		ID:            s.idGenerator.Generate(),
		SourceFile:    filename,
		Date:          fields.Date,
		Vendor:        fields.Vendor,
		Amount:        fields.Amount,
		Currency:      fields.Currency,
		Category:      fields.Category,
		InvoiceNumber: fields.InvoiceNumber,
		Degraded:      fields.Degraded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	session.Append(record, &Image{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})

	if len(record.Degraded) > 0 {
		slog.Info("Record parsed with degraded fields", "record_id", record.ID, "fields", record.Degraded)
	}

	return record, nil
}

// EditField applies one user correction to one record field. Validation is
// the same field-level contract as at creation: amounts must be non-negative
// decimals, dates must be valid calendar dates, categories are coerced into
// the taxonomy. A rejected edit leaves the record untouched.
func (s *Service) EditField(session *Session, recordID, field, value string) (*Record, error) {
	value = strings.TrimSpace(value)
	return session.Update(recordID, func(r *Record) error {
		switch field {
		case extraction.FieldDate:
			if value == "" {
				r.Date = ""
				break
			}
			date, ok := extraction.ParseDateText(value)
			if !ok {
				return fmt.Errorf("%w: %q is not a valid date", ErrEditRejected, value)
			}
			r.Date = date
		case extraction.FieldVendor:
			r.Vendor = value
		case extraction.FieldAmount:
			if value == "" {
				r.Amount = nil
				break
			}
			amount, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a number", ErrEditRejected, value)
			}
			if amount < 0 {
				return fmt.Errorf("%w: amount must not be negative", ErrEditRejected)
			}
			r.Amount = &amount
		case extraction.FieldCurrency:
			r.Currency = strings.ToUpper(value)
		case extraction.FieldCategory:
			r.Category, _ = extraction.CoerceCategory(value)
		case FieldInvoiceNumber:
			r.InvoiceNumber = value
		default:
			return fmt.Errorf("%w: unknown field %q", ErrEditRejected, field)
		}
		r.clearDegraded(field)
		r.UpdatedAt = s.timeSource.Now()
		return nil
	})
}

// DeleteRecord removes a record and its retained image from the ledger
func (s *Service) DeleteRecord(session *Session, recordID string) error {
	return session.Remove(recordID)
}

// ExportLedger serializes the session ledger to an XLSX workbook. A nil
// session exports as an empty ledger (header row only).
func (s *Service) ExportLedger(session *Session) ([]byte, error) {
	var records []*Record
	if session != nil {
		records = session.Records()
	}
	data, err := ExportXLSX(records)
	if err != nil {
		return nil, fmt.Errorf("exporting ledger: %w", err)
	}
	return data, nil
}
