package extraction

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Fields that are tracked as degraded when the model did not provide a
// usable value.
const (
	FieldDate     = "date"
	FieldVendor   = "vendor"
	FieldAmount   = "amount"
	FieldCurrency = "currency"
	FieldCategory = "category"
)

// dateFormats are the layouts accepted when the model strays from ISO 8601
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"January 2, 2006",
	"2 January 2006",
}

// ParseInvoice converts raw model output into InvoiceFields. It never fails:
// malformed or incomplete output degrades to sentinel values with the
// affected fields listed in Degraded, so the user can correct them manually.
func ParseInvoice(raw string) *InvoiceFields {
	fields := &InvoiceFields{Category: CategoryOther}

	text, ok := extractJSON(raw)
	if !ok {
		slog.Warn("No JSON object found in model response", "response_length", len(raw))
		fields.Degraded = []string{FieldDate, FieldVendor, FieldAmount, FieldCurrency, FieldCategory}
		return fields
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		slog.Warn("Model response is not valid JSON", "error", err)
		fields.Degraded = []string{FieldDate, FieldVendor, FieldAmount, FieldCurrency, FieldCategory}
		return fields
	}

	if err := invoicePayloadSchema.Validate(payload); err != nil {
		// Diagnostic only; individual fields are still salvaged below
		slog.Warn("Model payload failed schema validation", "error", err)
	}

	degrade := func(field string) {
		fields.Degraded = append(fields.Degraded, field)
	}

	if date, ok := ParseDateText(stringValue(payload["date"])); ok {
		fields.Date = date
	} else {
		degrade(FieldDate)
	}

	if vendor := strings.TrimSpace(stringValue(payload["vendor_name"])); vendor != "" {
		fields.Vendor = vendor
	} else {
		degrade(FieldVendor)
	}

	if amount, ok := parseAmount(payload["total_amount"]); ok {
		fields.Amount = &amount
	} else {
		degrade(FieldAmount)
	}

	if currency := strings.TrimSpace(stringValue(payload["currency"])); currency != "" {
		fields.Currency = strings.ToUpper(currency)
	} else {
		degrade(FieldCurrency)
	}

	category, matched := CoerceCategory(stringValue(payload["category"]))
	fields.Category = category
	if !matched {
		degrade(FieldCategory)
	}

	fields.InvoiceNumber = strings.TrimSpace(stringValue(payload["invoice_number"]))

	return fields
}

// extractJSON locates an embedded JSON object, tolerating surrounding prose
// and markdown fences the model may add
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", false
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", false
	}
	return text[startIdx : endIdx+1], true
}

// stringValue returns v as a string when it is one, otherwise ""
func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// ParseDateText validates a date string, trying ISO 8601 first and then
// common alternative layouts, and normalizes to ISO 8601. An unparsable date
// is reported as unknown rather than guessed.
func ParseDateText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02"), true
		}
	}
	return "", false
}

// parseAmount coerces the model's total_amount into a non-negative decimal.
// Models return amounts as JSON numbers or as strings with currency symbols
// and thousands separators embedded; both are tolerated.
func parseAmount(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		return parseAmountString(t)
	default:
		return 0, false
	}
}

// parseAmountString strips currency symbols and separators from an amount
// string and parses the remainder as a plain decimal
func parseAmountString(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}

	// With both separators present the comma is a thousands separator.
	// A lone comma followed by exactly two digits is a decimal comma.
	if strings.Contains(cleaned, ",") {
		if strings.Contains(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else if idx := strings.LastIndex(cleaned, ","); len(cleaned)-idx-1 == 2 && strings.Count(cleaned, ",") == 1 {
			cleaned = cleaned[:idx] + "." + cleaned[idx+1:]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return amount, true
}
