package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// UnknownItemName replaces missing or empty item names.
const UnknownItemName = "Unknown item"

// ErrMalformedReply is returned when the model reply is not a JSON object.
var ErrMalformedReply = errors.New("malformed extraction reply")

// Prompt instructs the model to return the strict item schema.
const Prompt = `You read photos of shopping receipts. Return only a JSON object of the form ` +
	`{"items":[{"name":"<item name>","price":<price as a number>}]}. ` +
	`Use the price printed on the receipt line, without currency symbols. ` +
	`If the image is not a receipt, return {"items":[]}.`

// Item is one extracted receipt line.
type Item struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type rawReply struct {
	Items []struct {
		Name  any `json:"name"`
		Price any `json:"price"`
	} `json:"items"`
}

// ParseItems decodes a model reply into items. Markdown code fences are
// stripped. A missing or blank name becomes UnknownItemName and a price that
// cannot be read, or is negative, becomes 0.
func ParseItems(reply string) ([]Item, error) {
	body := stripFences(reply)
	var raw rawReply
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	items := make([]Item, 0, len(raw.Items))
	for _, r := range raw.Items {
		items = append(items, Item{Name: itemName(r.Name), Price: itemPrice(r.Price)})
	}
	return items, nil
}

// Total sums item prices to the cent.
func Total(items []Item) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price))
	}
	return sum.Round(2).InexactFloat64()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an info string such as "json" on the opening fence.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func itemName(v any) string {
	s, ok := v.(string)
	if !ok {
		return UnknownItemName
	}
	s = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
	if s == "" {
		return UnknownItemName
	}
	return s
}

func itemPrice(v any) float64 {
	var d decimal.Decimal
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		d = decimal.NewFromFloat(x)
	case string:
		parsed, ok := parsePriceString(x)
		if !ok {
			return 0
		}
		d = parsed
	default:
		return 0
	}
	if d.IsNegative() {
		return 0
	}
	return d.Round(2).InexactFloat64()
}

// parsePriceString accepts strings like "$4.99", "4,99 €" or "1,299.00".
func parsePriceString(s string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return decimal.Zero, false
	}
	switch {
	case strings.Contains(cleaned, ".") && strings.Contains(cleaned, ","):
		// The last separator is the decimal point.
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Count(cleaned, ",") == 1:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
