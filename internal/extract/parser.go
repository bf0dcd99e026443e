package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawBatch mirrors the JSON schema the vision model is prompted to emit.
type rawBatch struct {
	DetectedType  string     `json:"detected_type"`
	Language      string     `json:"language"`
	Blocks        []rawBlock `json:"blocks"`
	KeyValuePairs []rawKV    `json:"key_value_pairs"`
	Tables        []rawTable `json:"tables"`
	Images        []rawImage `json:"images"`
	Summary       string     `json:"summary"`
}

type rawBlock struct {
	Type       string  `json:"type"`
	Page       int     `json:"page"`
	Region     string  `json:"region"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

type rawKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Page  int    `json:"page"`
}

type rawTable struct {
	Page    int     `json:"page"`
	Region  string  `json:"region"`
	Summary string  `json:"summary"`
	Data    [][]any `json:"data"`
}

type rawImage struct {
	ImageType   string `json:"image_type"`
	Page        int    `json:"page"`
	Region      string `json:"region"`
	Description string `json:"description"`
}

// ParseBatchOutput parses one batch worth of model output. Code fences are
// stripped and truncated JSON is repaired before giving up; a batch that
// still fails to parse is reported as an error so the caller can retry.
func ParseBatchOutput(raw string) (*BatchOutput, error) {
	cleaned := extractJSONObject(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var payload rawBatch
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		repaired := repairJSON(cleaned)
		if repairErr := json.Unmarshal([]byte(repaired), &payload); repairErr != nil {
			return nil, fmt.Errorf("parse model output: %w", err)
		}
	}

	out := &BatchOutput{
		DetectedType: strings.TrimSpace(payload.DetectedType),
		Language:     strings.TrimSpace(payload.Language),
		Summary:      strings.TrimSpace(payload.Summary),
	}

	for _, b := range payload.Blocks {
		content := strings.TrimSpace(b.Content)
		if content == "" {
			continue
		}
		out.Blocks = append(out.Blocks, Block{
			Type:       BlockType(strings.TrimSpace(b.Type)),
			Page:       pageOrFirst(b.Page),
			Region:     Region(b.Region),
			Content:    content,
			Confidence: b.Confidence,
		})
	}

	// Tables become table blocks whose content carries the summary plus
	// tab-separated rows; the table keeps its position among the other
	// blocks by page ordering downstream.
	for _, tbl := range payload.Tables {
		content := renderTable(tbl)
		if content == "" {
			continue
		}
		out.Blocks = append(out.Blocks, Block{
			Type:    BlockTable,
			Page:    pageOrFirst(tbl.Page),
			Region:  Region(tbl.Region),
			Content: content,
		})
	}

	for _, kv := range payload.KeyValuePairs {
		key := strings.TrimSpace(kv.Key)
		if key == "" {
			continue
		}
		out.KeyValues = append(out.KeyValues, KeyValue{
			Key:   key,
			Value: strings.TrimSpace(kv.Value),
			Page:  pageOrFirst(kv.Page),
		})
	}

	for _, img := range payload.Images {
		desc := strings.TrimSpace(img.Description)
		if desc == "" {
			continue
		}
		out.Images = append(out.Images, Image{
			Type:        strings.TrimSpace(img.ImageType),
			Page:        pageOrFirst(img.Page),
			Region:      Region(img.Region),
			Description: desc,
		})
	}

	return out, nil
}

// pageOrFirst defaults missing or nonsense page numbers to the first page
// of the batch.
func pageOrFirst(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func renderTable(tbl rawTable) string {
	var sb strings.Builder
	if s := strings.TrimSpace(tbl.Summary); s != "" {
		sb.WriteString(s)
	}
	for _, row := range tbl.Data {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, strings.TrimSpace(fmt.Sprint(cell)))
		}
		line := strings.Join(cells, "\t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// extractJSONObject strips markdown code fences and surrounding prose,
// returning the substring from the first '{' onward.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	return s[start:]
}

// repairJSON recovers truncated model output. It cuts the input back to the
// last complete JSON value, drops a trailing comma, and closes whatever
// objects and arrays remain open. The result is valid JSON whenever the
// input is a prefix of valid JSON; otherwise unmarshalling still fails and
// the batch is retried.
func repairJSON(s string) string {
	lastComplete := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				lastComplete = i + 1
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '}', ']':
			lastComplete = i + 1
		case 'e': // true, false
			lastComplete = i + 1
		case 'l': // null (second l wins)
			lastComplete = i + 1
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			lastComplete = i + 1
		}
	}

	if lastComplete < 0 {
		return s
	}

	candidate := strings.TrimRight(s[:lastComplete], " \t\r\n")
	candidate = strings.TrimSuffix(candidate, ",")

	// A dangling "key": with no value cannot be closed; drop the key too.
	trimmed := strings.TrimRight(candidate, " \t\r\n")
	if strings.HasSuffix(trimmed, ":") {
		if idx := strings.LastIndex(trimmed[:len(trimmed)-1], ","); idx >= 0 {
			candidate = trimmed[:idx]
		} else if idx := strings.LastIndexAny(trimmed[:len(trimmed)-1], "{["); idx >= 0 {
			candidate = trimmed[:idx+1]
		}
	}

	// Likewise an object key whose value was cut off entirely.
	candidate = dropDanglingKey(candidate)

	// Close whatever is still open.
	var stack []byte
	inString = false
	escaped = false
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(candidate)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			sb.WriteString("}")
		} else {
			sb.WriteString("]")
		}
	}
	return sb.String()
}

// dropDanglingKey removes a trailing complete string that is an object key
// with no value after it (the colon or value was truncated away).
func dropDanglingKey(s string) string {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if !strings.HasSuffix(trimmed, `"`) {
		return s
	}

	// Locate the final string token and the separator before it.
	inString := false
	escaped := false
	stringStart := -1
	lastStart := -1
	lastEnd := -1
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				lastStart = stringStart
				lastEnd = i
			}
			continue
		}
		if c == '"' {
			inString = true
			stringStart = i
		}
	}
	if inString || lastEnd != len(trimmed)-1 || lastStart < 0 {
		return s
	}

	before := strings.TrimRight(trimmed[:lastStart], " \t\r\n")
	switch {
	case strings.HasSuffix(before, ":"):
		// The string is a complete value.
		return s
	case strings.HasSuffix(before, ","):
		return before[:len(before)-1]
	case strings.HasSuffix(before, "{"), strings.HasSuffix(before, "["):
		return before
	default:
		return s
	}
}
