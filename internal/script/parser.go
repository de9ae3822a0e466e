package script

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"ubacktest/internal/domain"
)

// MaxDebugLen caps the debug output returned to the caller. Anything past
// it is elided with a suffix noting how much was cut.
const MaxDebugLen = 10000

// Output is the parsed result of one sandbox execution. Signal is nil when
// the run produced no payload but stderr explains why (a user code error).
type Output struct {
	Debug  string
	Signal []float64
	Data   domain.UserDefinedData
}

// payload mirrors the JSON block the composed script prints.
type payload struct {
	Result struct {
		Signal []float64 `json:"signal"`
	} `json:"result"`
	Data map[string]json.RawMessage `json:"data"`
}

// Parse extracts the delimited payload from stdout. When no payload exists
// and stderr is empty too, the engine produced nothing observable and the
// run fails with NoEnginePayload; with a non-empty stderr the user's code
// crashed and the caller reports that instead.
func Parse(stdout, stderr, key string) (*Output, error) {
	marker := regexp.MustCompile(
		`(?s)` + regexp.QuoteMeta(key+"START"+key) + `(.*?)` + regexp.QuoteMeta(key+"END"+key))

	m := marker.FindStringSubmatchIndex(stdout)
	if m == nil {
		if strings.TrimSpace(stderr) == "" {
			return nil, &domain.SandboxError{
				Kind: domain.NoEnginePayload,
				Msg:  "the execution produced no recoverable result; heavy print output can desynchronize capture",
			}
		}
		return &Output{Debug: truncateDebug(stdout)}, nil
	}

	var p payload
	if err := json.Unmarshal([]byte(stdout[m[2]:m[3]]), &p); err != nil {
		return nil, &domain.SandboxError{
			Kind: domain.NoEnginePayload,
			Msg:  fmt.Sprintf("the result payload is not valid JSON: %v", err),
		}
	}

	data := domain.UserDefinedData{}
	for name, raw := range p.Data {
		var series []float64
		if err := json.Unmarshal(raw, &series); err != nil {
			continue // not a numeric array, drop it
		}
		if len(series) != len(p.Result.Signal) {
			continue
		}
		data[name] = series
	}

	debug := stdout[:m[0]] + stdout[m[1]:]
	return &Output{
		Debug:  truncateDebug(debug),
		Signal: p.Result.Signal,
		Data:   data,
	}, nil
}

func truncateDebug(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxDebugLen {
		return s
	}
	// Back off to a rune boundary so the cut never splits a multibyte
	// character.
	cut := MaxDebugLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	elided := len(s) - cut
	return s[:cut] + fmt.Sprintf("... (%d more characters)", elided)
}
