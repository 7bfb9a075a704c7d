package agents

import "github.com/dyike/CortexTrade/internal/reasoner"

var imageFindingsSchema = reasoner.OutputSchema{
	Name:        "image_findings",
	Description: "the structured findings read from the chart image",
	JSONSchema: `{
  "type": "object",
  "properties": {
    "instrument": {"type": ["string", "null"]},
    "timeframe": {"type": ["string", "null"]},
    "patterns": {"type": "array", "items": {"type": "string"}},
    "supportResistance": {"type": "array", "items": {"type": "string"}},
    "notes": {"type": "string"},
    "signal": {
      "type": "object",
      "properties": {
        "direction": {"type": "string", "enum": ["buy", "sell", "wait", "unknown"]},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      },
      "required": ["direction", "confidence"]
    }
  },
  "required": ["instrument", "timeframe", "patterns", "supportResistance", "notes", "signal"]
}`,
}

var searchSummarySchema = reasoner.OutputSchema{
	Name:        "search_summary",
	Description: "a concise summary of one search result",
	JSONSchema: `{
  "type": "object",
  "properties": {"summary": {"type": "string"}},
  "required": ["summary"]
}`,
}

var tradeSuggestionSchema = reasoner.OutputSchema{
	Name:        "trade_suggestion",
	Description: "exactly one trade plan",
	JSONSchema: `{
  "type": "object",
  "properties": {
    "action": {"type": "string", "enum": ["buy", "sell", "wait"]},
    "entry": {"type": ["number", "null"]},
    "stop": {"type": ["number", "null"]},
    "targets": {"type": "array", "items": {"type": "number"}},
    "size": {"type": "number", "minimum": 0},
    "rationale": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["action", "entry", "stop", "targets", "size", "rationale", "confidence"]
}`,
}
