package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-book-catalog/models"
)

// ValidateNewRecord ensures a record to be created carries the required fields.
func ValidateNewRecord(r *models.NewRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record missing title")
	}
	if strings.TrimSpace(r.Author) == "" {
		return fmt.Errorf("record missing author for %s", r.Title)
	}
	return nil
}

// NormalizeNewRecord trims surrounding whitespace from the editable fields.
func NormalizeNewRecord(r models.NewRecord) models.NewRecord {
	return models.NewRecord{
		Title:  strings.TrimSpace(r.Title),
		Author: strings.TrimSpace(r.Author),
	}
}

// NormalizeFilter trims surrounding whitespace from the search criteria.
func NormalizeFilter(f models.Filter) models.Filter {
	return models.Filter{
		Title:  strings.TrimSpace(f.Title),
		Author: strings.TrimSpace(f.Author),
	}
}

// ParseSales converts the text of a sales input box. Blank text yields the
// empty marker rather than zero.
func ParseSales(text string) (models.SalesInput, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" {
		return models.EmptySales(), nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return models.EmptySales(), fmt.Errorf("sales must be an integer: %q", text)
	}
	return models.Sales(n), nil
}
