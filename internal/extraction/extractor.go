package extraction

import "context"

// InvoiceFields contains the fields extracted from one invoice image.
// Every field has a sentinel value ("" or nil) rather than being absent;
// Degraded lists the fields that fell back to their sentinel.
type InvoiceFields struct {
	Date          string   `json:"date"` // ISO 8601, "" when unknown
	Vendor        string   `json:"vendor"`
	Amount        *float64 `json:"amount"` // nil when unknown
	Currency      string   `json:"currency"`
	Category      string   `json:"category"` // always a taxonomy entry
	InvoiceNumber string   `json:"invoice_number"`
	Degraded      []string `json:"degraded,omitempty"`
}

// Extractor defines the interface for remote invoice extraction
type Extractor interface {
	// Extract sends an invoice image and an instruction to the model and
	// returns the raw response text
	Extract(ctx context.Context, imageData []byte, mimeType string, instruction string) (string, error)
	// Close closes the extractor and releases resources
	Close() error
}
