package extraction

import (
	"fmt"
	"os"
	"strings"
)

// defaultInstructionTemplate is the instruction sent to the model alongside
// each invoice image. %s is replaced with the category taxonomy. The
// instruction is configuration, not pipeline logic: callers may substitute
// their own text via InstructionFromFile.
const defaultInstructionTemplate = `You are an expert Financial Data Extraction AI analyzing an invoice or receipt image.

Carefully read all text in the image and extract the following information:

1. **Date**: The transaction, purchase, or invoice date. Convert it to ISO 8601 format (YYYY-MM-DD). Common source formats: MM/DD/YYYY, DD/MM/YYYY, or written dates.

2. **Vendor**: The merchant, store, or business name, usually the largest text or in a header. Examples: "Uber", "Starbucks", "AWS".

3. **Total Amount**: The final total, grand total, or amount due, usually at the bottom and labeled "TOTAL", "Amount Due", or similar. Extract only the numeric value with no currency symbol (e.g., 42.75 for $42.75).

4. **Currency**: The currency as a short code (e.g., IDR, USD, SGD).

5. **Category**: Choose strictly from: %s.

6. **Invoice Number**: The invoice or receipt number if one is printed.

Return ONLY valid JSON in this exact format:
{
  "date": "YYYY-MM-DD",
  "vendor_name": "String",
  "total_amount": 0.00,
  "currency": "String",
  "category": "String",
  "invoice_number": "String"
}

Important:
- The date must be in YYYY-MM-DD format
- The total_amount must be a number (not a string), with currency symbols removed
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// DefaultInstruction returns the built-in extraction instruction with the
// category taxonomy filled in.
func DefaultInstruction() string {
	return fmt.Sprintf(defaultInstructionTemplate, strings.Join(Categories(), ", "))
}

// InstructionFromFile loads a custom instruction template from disk. The file
// may contain a single %s placeholder for the category taxonomy; any other
// text, including literal percent signs, passes through untouched.
func InstructionFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading instruction file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("instruction file %s is empty", path)
	}
	return strings.Replace(text, "%s", strings.Join(Categories(), ", "), 1), nil
}
