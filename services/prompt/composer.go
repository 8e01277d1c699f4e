package prompt

import (
	"strconv"
	"strings"

	"github.com/upb/smart-retail-assistant/models"
)

// Defaults used when ComposerConfig leaves a field empty
const (
	DefaultDescriptionMaxChars = 200
	DefaultCurrencySymbol      = "$"
	DefaultNoResultsText       = "No matching products found."
	DefaultHeader              = "Here are some relevant products found in our catalog:"
	unknownPrice               = "unknown"
	descriptionEllipsis        = "..."
)

// ComposerConfig controls how search results are rendered for the model
type ComposerConfig struct {
	DescriptionMaxChars int
	CurrencySymbol      string
	NoResultsText       string
	Header              string
}

// Composer renders search results into the grounding block
type Composer struct {
	config ComposerConfig
}

// NewComposer creates a composer, filling unset fields with defaults
func NewComposer(config ComposerConfig) *Composer {
	if config.DescriptionMaxChars <= 0 {
		config.DescriptionMaxChars = DefaultDescriptionMaxChars
	}
	if config.CurrencySymbol == "" {
		config.CurrencySymbol = DefaultCurrencySymbol
	}
	if config.NoResultsText == "" {
		config.NoResultsText = DefaultNoResultsText
	}
	if config.Header == "" {
		config.Header = DefaultHeader
	}
	return &Composer{config: config}
}

// Render produces one line per result, in the order given:
//
//   - <name> (<category>): <description>... Price: <price>
//
// An empty result set renders the no-results sentinel instead.
func (c *Composer) Render(results []models.SearchResult) string {
	if len(results) == 0 {
		return c.config.NoResultsText
	}

	var b strings.Builder
	b.WriteString(c.config.Header)
	b.WriteString("\n")
	for _, r := range results {
		c.writeLine(&b, &r.Product)
	}
	return b.String()
}

func (c *Composer) writeLine(b *strings.Builder, p *models.ProductRecord) {
	b.WriteString("- ")
	b.WriteString(SingleLine(p.Name))
	if category := SingleLine(p.Category); category != "" {
		b.WriteString(" (")
		b.WriteString(category)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(Truncate(SingleLine(p.Description), c.config.DescriptionMaxChars))
	b.WriteString(descriptionEllipsis)
	b.WriteString(" Price: ")
	b.WriteString(c.formatPrice(p.Price))
	b.WriteString("\n")
}

func (c *Composer) formatPrice(price *float64) string {
	if price == nil {
		return unknownPrice
	}
	return c.config.CurrencySymbol + strconv.FormatFloat(*price, 'f', -1, 64)
}

// SingleLine joins the lines of s with single spaces so a field never breaks
// the one-line-per-product layout. Blank lines are dropped.
func SingleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' })
	lines := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			lines = append(lines, part)
		}
	}
	return strings.Join(lines, " ")
}

// Truncate keeps at most n characters of s, counting runes rather than bytes
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
