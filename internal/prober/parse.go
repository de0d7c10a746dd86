package prober

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// Field-name sets searched in structured responses. Negative keys are tested
// first: "unavailable" must not match the positive "available".
var (
	negativeKeys = []string{"out_of_stock", "outofstock", "sold_out", "soldout", "unavailable", "stockout", "stock_out"}
	statusKeys   = []string{"status", "state", "availability"}
	positiveKeys = []string{"stock", "inventory", "available", "quantity", "qty", "count", "remaining", "units"}
)

var reStockMention = []*regexp.Regexp{
	regexp.MustCompile(`(?i)stock\s*[::]\s*(\d+)`),
	regexp.MustCompile(`库存\s*[::]?\s*(\d+)`),
}

// findings accumulates stock-related fields discovered in one response.
type findings struct {
	negatives  []string // explicit negative fields that were truthy
	quantities []float64
	qtyKeys    []string
	bools      []bool
	statuses   []bool // true = leans available
	statusRaw  []string
}

func (f *findings) empty() bool {
	return len(f.negatives) == 0 && len(f.quantities) == 0 && len(f.bools) == 0 && len(f.statuses) == 0
}

// decide applies the conflict-priority ladder: an explicit negative field
// wins outright; a zero quantity beats positive quantities; any positive
// quantity beats booleans; consistent booleans beat status strings; status
// strings combine with a bias toward any-negative-wins.
func (f *findings) decide() (plugin.Signal, bool) {
	if len(f.negatives) > 0 {
		return apiSignal(plugin.StatusUnavailable, 0.95, "explicit_negative_field",
			"negative field: "+f.negatives[0]), true
	}
	for i, q := range f.quantities {
		if q == 0 {
			return apiSignal(plugin.StatusUnavailable, 0.95, "zero_quantity",
				fmt.Sprintf("%s=0", f.qtyKeys[i])), true
		}
	}
	for i, q := range f.quantities {
		if q > 0 {
			return apiSignal(plugin.StatusAvailable, 0.9, "positive_quantity",
				fmt.Sprintf("%s=%g", f.qtyKeys[i], q)), true
		}
	}
	if len(f.bools) > 0 {
		consistent := true
		for _, b := range f.bools[1:] {
			if b != f.bools[0] {
				consistent = false
				break
			}
		}
		if consistent {
			st := plugin.StatusUnavailable
			if f.bools[0] {
				st = plugin.StatusAvailable
			}
			return apiSignal(st, 0.85, "boolean_fields",
				fmt.Sprintf("%d consistent boolean fields", len(f.bools))), true
		}
	}
	if len(f.statuses) > 0 {
		for i, avail := range f.statuses {
			if !avail {
				return apiSignal(plugin.StatusUnavailable, 0.8, "status_field",
					"status: "+f.statusRaw[i]), true
			}
		}
		return apiSignal(plugin.StatusAvailable, 0.75, "status_field",
			"status: "+f.statusRaw[0]), true
	}
	return plugin.Signal{}, false
}

// addField classifies one key/value pair into the findings.
func (f *findings) addField(key string, value any) {
	k := strings.ToLower(key)

	if matchesAny(k, negativeKeys) {
		switch v := value.(type) {
		case bool:
			if v {
				f.negatives = append(f.negatives, key)
			} else {
				f.bools = append(f.bools, true)
			}
		case float64:
			if v != 0 {
				f.negatives = append(f.negatives, key)
			} else {
				f.bools = append(f.bools, true)
			}
		case string:
			if truthy(v) {
				f.negatives = append(f.negatives, key)
			}
		}
		return
	}

	if matchesAny(k, statusKeys) {
		switch v := value.(type) {
		case bool:
			f.bools = append(f.bools, v)
		case string:
			if avail, ok := statusLeaning(v); ok {
				f.statuses = append(f.statuses, avail)
				f.statusRaw = append(f.statusRaw, key+"="+v)
			}
		}
		return
	}

	if matchesAny(k, positiveKeys) {
		switch v := value.(type) {
		case float64:
			f.quantities = append(f.quantities, v)
			f.qtyKeys = append(f.qtyKeys, key)
		case bool:
			f.bools = append(f.bools, v)
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				f.quantities = append(f.quantities, n)
				f.qtyKeys = append(f.qtyKeys, key)
			} else if avail, ok := statusLeaning(v); ok {
				f.statuses = append(f.statuses, avail)
				f.statusRaw = append(f.statusRaw, key+"="+v)
			}
		}
	}
}

func matchesAny(key string, set []string) bool {
	for _, s := range set {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

// statusLeaning interprets a status-like string value. Negative wording is
// tested first so "out of stock" never matches "stock".
func statusLeaning(s string) (avail bool, ok bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	negMarkers := []string{"out of stock", "out_of_stock", "outofstock", "sold out", "sold_out", "soldout",
		"unavailable", "no stock", "无货", "缺货", "售罄", "discontinued"}
	for _, m := range negMarkers {
		if strings.Contains(v, m) {
			return false, true
		}
	}
	posMarkers := []string{"in stock", "in_stock", "instock", "available", "有货", "现货", "ok", "active"}
	for _, m := range posMarkers {
		if strings.Contains(v, m) {
			return true, true
		}
	}
	switch v {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}

// ---------- JSON ----------

// parseJSON handles JSON-decodable bodies. Returns ok=true for any valid
// JSON, even when no stock field was found; the cascade stops here because
// falling through to text matching on raw JSON produces junk hits.
func parseJSON(body []byte) (plugin.Signal, bool) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return plugin.Signal{}, false
	}

	if arr, ok := root.([]any); ok {
		if len(arr) == 0 {
			return apiSignal(plugin.StatusUnavailable, 0.85, "empty_result_set", "top-level empty array"), true
		}
		if sig, ok := decideItemArray(arr); ok {
			return sig, true
		}
	}

	f := &findings{}
	walkJSON(root, f)
	if sig, ok := f.decide(); ok {
		return sig, true
	}
	return plugin.Unknown(MethodProber, "json: no stock fields"), true
}

// decideItemArray evaluates an array of per-item objects and reports
// aggregate availability.
func decideItemArray(arr []any) (plugin.Signal, bool) {
	total, avail := 0, 0
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return plugin.Signal{}, false
		}
		f := &findings{}
		walkJSON(obj, f)
		sig, ok := f.decide()
		if !ok {
			continue
		}
		total++
		if sig.Status == plugin.StatusAvailable {
			avail++
		}
	}
	if total == 0 {
		return plugin.Signal{}, false
	}
	evidence := fmt.Sprintf("%d of %d available", avail, total)
	if avail > 0 {
		return apiSignal(plugin.StatusAvailable, 0.85, "item_array", evidence), true
	}
	return apiSignal(plugin.StatusUnavailable, 0.9, "item_array", evidence), true
}

func walkJSON(node any, f *findings) {
	switch v := node.(type) {
	case map[string]any:
		for key, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				walkJSON(val, f)
			default:
				f.addField(key, val)
			}
		}
	case []any:
		for _, item := range v {
			walkJSON(item, f)
		}
	}
}

// ---------- XML ----------

func parseXML(body []byte) (plugin.Signal, bool) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return plugin.Signal{}, false
	}

	f := &findings{}
	var walk func(n *xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != xmlquery.ElementNode {
				continue
			}
			if hasElementChildren(child) {
				walk(child)
				continue
			}
			f.addField(child.Data, strings.TrimSpace(child.InnerText()))
		}
	}
	walk(doc)

	if f.empty() {
		return plugin.Signal{}, false
	}
	sig, ok := f.decide()
	if !ok {
		return plugin.Signal{}, false
	}
	return sig, true
}

func hasElementChildren(n *xmlquery.Node) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return true
		}
	}
	return false
}

// ---------- CSV ----------

func looksLikeCSV(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '<' || trimmed[0] == '{' || trimmed[0] == '[' {
		return false
	}
	head := trimmed
	if idx := bytes.IndexByte(head, '\n'); idx > 0 {
		head = head[:idx]
	}
	return bytes.IndexByte(head, ',') > 0
}

func parseCSV(body []byte) (plugin.Signal, bool) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return plugin.Signal{}, false
	}

	header := records[0]
	f := &findings{}
	for _, row := range records[1:] {
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			f.addField(strings.TrimSpace(header[i]), strings.TrimSpace(cell))
		}
	}

	if f.empty() {
		return plugin.Signal{}, false
	}
	sig, ok := f.decide()
	if !ok {
		return plugin.Signal{}, false
	}
	return sig, true
}

// ---------- plain text ----------

// parseText scores the body with the shared keyword classifier, then falls
// back to a scan for "stock: N" style mentions.
func (p *Prober) parseText(body string) plugin.Signal {
	kw := p.keywords.Classify(body)
	if kw.Status != plugin.StatusUnknown {
		return plugin.Signal{
			Method:     MethodProber,
			Status:     kw.Status,
			Confidence: kw.Confidence,
			Reason:     kw.Reason,
			Evidence:   "text keywords: " + kw.Evidence,
		}
	}

	for _, re := range reStockMention {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if qty == 0 {
			return apiSignal(plugin.StatusUnavailable, 0.9, "zero_quantity", m[0])
		}
		return apiSignal(plugin.StatusAvailable, 0.85, "positive_quantity", m[0])
	}

	return plugin.Unknown(MethodProber, "no stock indicators in response")
}

func apiSignal(st plugin.Status, conf float64, reason, evidence string) plugin.Signal {
	return plugin.Signal{
		Method:     MethodProber,
		Status:     st,
		Confidence: conf,
		Reason:     reason,
		Evidence:   evidence,
	}
}
