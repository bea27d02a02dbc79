package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"mercator-hq/deepguard/pkg/decision"
)

// inputLine is the object form of an input line.
type inputLine struct {
	RequestID  string            `json:"request_id"`
	MediaID    string            `json:"media_id"`
	Score      *float64          `json:"score"`
	Attributes map[string]string `json:"attributes"`
}

// ParseLine parses one input line: either a JSON object with a score, or a
// bare number. Blank lines and lines starting with '#' return ok=false.
func ParseLine(line []byte) (req *decision.Request, ok bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return nil, false, nil
	}

	if line[0] == '{' {
		var in inputLine
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return nil, true, fmt.Errorf("invalid input object: %w", err)
		}
		if in.Score == nil {
			return nil, true, fmt.Errorf("invalid input object: missing score")
		}
		return &decision.Request{
			RequestID:  in.RequestID,
			MediaID:    in.MediaID,
			Score:      *in.Score,
			Attributes: in.Attributes,
		}, true, nil
	}

	score, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return nil, true, fmt.Errorf("invalid score %q: not a number", string(line))
	}
	return &decision.Request{Score: score}, true, nil
}
