package invoice

import "time"

// Record represents the structured result of extracting one invoice image.
// Unknown fields hold sentinel values ("" or nil amount) rather than being
// absent; Degraded lists the fields the extraction could not determine so
// the UI can flag them for manual correction.
type Record struct {
	ID            string    `json:"id"`
	SourceFile    string    `json:"source_file"`
	Date          string    `json:"date"` // ISO 8601, "" when unknown
	Vendor        string    `json:"vendor"`
	Amount        *float64  `json:"amount"` // nil when unknown, non-negative otherwise
	Currency      string    `json:"currency"`
	Category      string    `json:"category"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	Degraded      []string  `json:"degraded,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Image holds the uploaded bytes for one invoice. Images live in memory for
// the session lifetime only and are discarded with their record.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// clearDegraded removes a field from the record's degraded list after a
// manual correction
func (r *Record) clearDegraded(field string) {
	for i, f := range r.Degraded {
		if f == field {
			r.Degraded = append(r.Degraded[:i], r.Degraded[i+1:]...)
			return
		}
	}
}
