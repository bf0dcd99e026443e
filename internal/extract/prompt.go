package extract

import "fmt"

// extractionPrompt instructs the vision model to return structured JSON for
// a batch of page images. Page numbers in the response are relative to the
// batch; the worker shifts them to absolute positions.
func extractionPrompt(pageCount int) string {
	return fmt.Sprintf(`You are a document analysis engine. You receive %d page image(s) of a document, in order. Analyze every page and return ONLY a JSON object, no markdown fences and no commentary, with exactly this shape:

{
  "detected_type": "<document kind, e.g. invoice, contract, report, manual>",
  "language": "<primary language code, e.g. en, de, zh>",
  "blocks": [
    {"type": "<text|title|header|section_title|footer|list|caption|formula>", "page": <n>, "region": "<top-left|top-center|top-right|middle-left|middle-center|middle-right|bottom-left|bottom-center|bottom-right|full-page>", "content": "<verbatim text>", "confidence": <0.0-1.0>}
  ],
  "key_value_pairs": [
    {"key": "<field name>", "value": "<field value>", "page": <n>}
  ],
  "tables": [
    {"page": <n>, "region": "<region>", "summary": "<one sentence describing the table>", "data": [["header", "cells"], ["row", "cells"]]}
  ],
  "images": [
    {"image_type": "<photo|chart|diagram|logo|signature|stamp>", "page": <n>, "region": "<region>", "description": "<what the image shows>"}
  ],
  "summary": "<2-3 sentence summary of these pages>"
}

Rules:
- "page" is the 1-based position of the page within THIS request: the first image is page 1, the last is page %d.
- Transcribe text verbatim in reading order; do not translate or paraphrase.
- Extract labeled fields (dates, amounts, identifiers, parties) as key_value_pairs.
- Every table goes into "tables" with its full cell data, not into "blocks".
- Describe every meaningful figure, chart, or photo in "images".
- Use empty arrays for absent categories. Return valid JSON only.`, pageCount, pageCount)
}
