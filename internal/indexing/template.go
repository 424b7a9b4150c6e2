// Package indexing implements §4.7: deterministic per-section
// templating, entity- and chunk-level embedding, and the per-chunk
// sync-state bookkeeping that GetStaleEmbeddings reads.
package indexing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// notSpecified is the canonical rendering of a missing value.
const notSpecified = "Not specified"

// currencyFields names the well-known dollar-amount fields the
// domain's section processors produce. Matched by exact key name
// rather than by value type, since extracted_fields carries no
// per-key type metadata of its own.
var currencyFields = map[string]bool{
	"building_value": true, "contents_value": true, "business_income": true,
	"premium": true, "premium_amount": true, "limit": true, "limit_amount": true,
	"deductible": true, "deductible_amount": true, "paid_amount": true,
	"reserved_amount": true, "total_insured_value": true, "annual_revenue": true,
}

// dateFields names the well-known date-valued fields.
var dateFields = map[string]bool{
	"effective_date": true, "expiration_date": true, "date_of_loss": true,
	"issue_date": true, "renewal_date": true, "policy_period_start": true,
	"policy_period_end": true,
}

// Template renders a section's fields into a stable, keyword-enriched
// string for embedding. Fields are visited in sorted key order so
// identical input always produces identical output, and every value
// goes through the same canonical formatting rules regardless of
// where in the pipeline it was produced.
func Template(sectionType string, fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "entities" || k == "additional_data" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", titleCase(sectionType))
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", titleCase(k), renderValue(k, fields[k]))
	}

	keywords := contextKeywords(sectionType, fields, keys)
	if len(keywords) > 0 {
		fmt.Fprintf(&b, "Context keywords: %s\n", strings.Join(keywords, ", "))
	}
	return b.String()
}

// renderValue applies the canonical formatting rule for one field,
// keyed by field name since extracted_fields is untyped JSON.
func renderValue(key string, v any) string {
	if v == nil {
		return notSpecified
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return notSpecified
		}
		if dateFields[key] {
			return renderDate(val)
		}
		return val
	case float64:
		if currencyFields[key] {
			return renderCurrency(val)
		}
		return humanize.FormatFloat("#,###.##", val)
	case int:
		if currencyFields[key] {
			return renderCurrency(float64(val))
		}
		return humanize.Comma(int64(val))
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// titleCase renders a snake_case field or section name as a human
// heading: "building_value" -> "Building Value".
func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// renderCurrency formats a dollar amount canonically: "$12,345.67".
func renderCurrency(amount float64) string {
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

// renderDate normalizes a date string to YYYY-MM-DD, falling back to
// the raw value (rather than "Not specified") if it can't be parsed,
// since a malformed-but-present date is still evidence.
func renderDate(raw string) string {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "01/02/2006", "January 2, 2006", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}

// contextKeywords builds the trailing "Context keywords" line: the
// section type itself, plus every non-empty string-valued field,
// deduplicated and in stable order.
func contextKeywords(sectionType string, fields map[string]any, sortedKeys []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(strings.ReplaceAll(sectionType, "_", " "))
	for _, k := range sortedKeys {
		if s, ok := fields[k].(string); ok {
			add(s)
		}
	}
	return out
}
