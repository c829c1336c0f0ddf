package asr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Word is one recognized word with its timing.
type Word struct {
	Word  string  `json:"word"`
	Conf  float64 `json:"conf"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is a decoded recognition message.
type Transcript struct {
	Text    string `json:"text,omitempty"`
	Partial string `json:"partial,omitempty"`
	Words   []Word `json:"result,omitempty"`
	Final   bool   `json:"-"`
}

type wireResult struct {
	Result  json.RawMessage `json:"result"`
	Text    string          `json:"text"`
	Partial string          `json:"partial"`
}

// ParseTranscript decodes a server message. Final is set only when the
// message has a result and non-empty text.
func ParseTranscript(data []byte) (Transcript, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return Transcript{}, fmt.Errorf("asr: decode transcript: %w", err)
	}

	t := Transcript{
		Text:    w.Text,
		Partial: w.Partial,
	}

	hasResult := len(w.Result) > 0 && !bytes.Equal(w.Result, []byte("null"))
	if hasResult {
		if err := json.Unmarshal(w.Result, &t.Words); err != nil {
			return Transcript{}, fmt.Errorf("asr: decode result words: %w", err)
		}
	}
	t.Final = hasResult && t.Text != ""
	return t, nil
}
