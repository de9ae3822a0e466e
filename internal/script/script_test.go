package script

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"ubacktest/internal/domain"
)

func sampleSeries() domain.BarSeries {
	return domain.BarSeries{
		Timestamp: []int64{1641168000, 1641254400, 1641340800, 1641427200, 1641513600},
		Open:      []float64{0.99, 1.0, 1.01, 1.02, 1.03},
		High:      []float64{1.01, 1.02, 1.03, 1.04, 1.05},
		Low:       []float64{0.98, 0.99, 1.0, 1.01, 1.02},
		Close:     []float64{1.0, 1.01, 1.02, 1.03, 1.04},
		Volume:    []float64{1000, 1100, 1200, 1300, 1400},
	}
}

func TestNewKeyIsFreshAndAlphanumeric(t *testing.T) {
	a, b := NewKey(), NewKey()
	if a == b {
		t.Error("NewKey() returned the same key twice")
	}
	if !regexp.MustCompile(`^[a-z0-9]+$`).MatchString(a) {
		t.Errorf("NewKey() = %q, want lowercase alphanumeric", a)
	}
}

func TestComposeEmbedsDataAndMarkers(t *testing.T) {
	key := NewKey()
	userCode := "def strategy(df):\n    df['signal'] = 1\n    return df"
	full := sampleSeries()

	text, err := Compose(userCode, full, 1641340800, key)
	if err != nil {
		t.Fatalf("Compose() error: %v", err)
	}

	if !strings.Contains(text, userCode) {
		t.Error("composed script does not contain the user code verbatim")
	}
	if !strings.Contains(text, key+"START"+key) || !strings.Contains(text, key+"END"+key) {
		t.Error("composed script does not print the delimiter markers")
	}
	if !strings.Contains(text, ">= 1641340800") {
		t.Error("composed script does not truncate at the cutoff timestamp")
	}

	// The market data rides in as base64, never as literal source text.
	columns, _ := json.Marshal(full)
	encoded := base64.StdEncoding.EncodeToString(columns)
	if !strings.Contains(text, encoded) {
		t.Error("composed script does not embed the base64 data blob")
	}
	if strings.Contains(text, `"timestamp":[1641168000`) {
		t.Error("composed script embeds raw JSON data as source text")
	}
}

func TestComposeRejectsEmptyCode(t *testing.T) {
	_, err := Compose("  \n ", sampleSeries(), 0, NewKey())
	var uie *domain.UserInputError
	if !errors.As(err, &uie) {
		t.Errorf("Compose(empty) = %v, want UserInputError", err)
	}
}

func wrap(key string, body any) string {
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return key + "START" + key + string(b) + key + "END" + key
}

func TestParseRoundTrip(t *testing.T) {
	key := NewKey()
	body := map[string]any{
		"result": map[string]any{"signal": []float64{0, 1, 1, -1}},
		"data": map[string]any{
			"sma":      []float64{1.1, 1.2, 1.3, 1.4},
			"tooShort": []float64{1, 2},
			"labels":   []string{"a", "b", "c", "d"},
		},
	}
	stdout := "warming up\n" + wrap(key, body) + "\n"

	out, err := Parse(stdout, "", key)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	want := []float64{0, 1, 1, -1}
	if len(out.Signal) != len(want) {
		t.Fatalf("Signal length = %d, want %d", len(out.Signal), len(want))
	}
	for i := range want {
		if out.Signal[i] != want[i] {
			t.Errorf("Signal[%d] = %v, want %v", i, out.Signal[i], want[i])
		}
	}

	if _, ok := out.Data["sma"]; !ok {
		t.Error("Data is missing the well-formed sma series")
	}
	if _, ok := out.Data["tooShort"]; ok {
		t.Error("Data kept a series with mismatched length")
	}
	if _, ok := out.Data["labels"]; ok {
		t.Error("Data kept a non-numeric series")
	}

	if out.Debug != "warming up" {
		t.Errorf("Debug = %q, want payload stripped and trimmed", out.Debug)
	}
}

func TestParseDelimiterLikeDebugOutput(t *testing.T) {
	key := NewKey()
	other := NewKey()
	body := map[string]any{
		"result": map[string]any{"signal": []float64{1}},
		"data":   map[string]any{},
	}
	// Debug text containing a different run's markers must not confuse the
	// scan.
	stdout := other + "START" + other + "{}" + other + "END" + other + "\n" + wrap(key, body)

	out, err := Parse(stdout, "", key)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(out.Signal) != 1 || out.Signal[0] != 1 {
		t.Errorf("Signal = %v, want [1]", out.Signal)
	}
	if !strings.Contains(out.Debug, other+"START"+other) {
		t.Error("Debug lost the delimiter-like user output")
	}
}

func TestParseNoPayload(t *testing.T) {
	key := NewKey()

	t.Run("empty stderr", func(t *testing.T) {
		_, err := Parse("just some prints\n", "", key)
		var se *domain.SandboxError
		if !errors.As(err, &se) || se.Kind != domain.NoEnginePayload {
			t.Errorf("Parse() = %v, want NoEnginePayload", err)
		}
	})

	t.Run("user error on stderr", func(t *testing.T) {
		out, err := Parse("partial output", "Traceback: ZeroDivisionError", key)
		if err != nil {
			t.Fatalf("Parse() error: %v, want nil with user stderr present", err)
		}
		if out.Signal != nil {
			t.Errorf("Signal = %v, want nil", out.Signal)
		}
		if out.Debug != "partial output" {
			t.Errorf("Debug = %q, want the raw stdout", out.Debug)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		stdout := key + "START" + key + "{not json" + key + "END" + key
		_, err := Parse(stdout, "", key)
		var se *domain.SandboxError
		if !errors.As(err, &se) || se.Kind != domain.NoEnginePayload {
			t.Errorf("Parse() = %v, want NoEnginePayload", err)
		}
	})
}

func TestParseTruncatesDebug(t *testing.T) {
	key := NewKey()
	body := map[string]any{
		"result": map[string]any{"signal": []float64{1}},
		"data":   map[string]any{},
	}
	long := strings.Repeat("x", MaxDebugLen+500)
	stdout := long + "\n" + wrap(key, body)

	out, err := Parse(stdout, "", key)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(out.Debug) <= MaxDebugLen {
		t.Fatalf("Debug length = %d, want ceiling plus elision suffix", len(out.Debug))
	}
	if !strings.HasSuffix(out.Debug, "more characters)") {
		t.Errorf("Debug does not end with an elision suffix: %q", out.Debug[len(out.Debug)-40:])
	}
	wantSuffix := fmt.Sprintf("... (%d more characters)", 500)
	if !strings.HasSuffix(out.Debug, wantSuffix) {
		t.Errorf("Debug suffix = %q, want %q", out.Debug[len(out.Debug)-40:], wantSuffix)
	}
}

func TestTruncateDebugKeepsRunesWhole(t *testing.T) {
	// A multibyte rune straddling the ceiling must not be split.
	s := strings.Repeat("a", MaxDebugLen-1) + "éé"

	out := truncateDebug(s)
	if !utf8.ValidString(out) {
		t.Fatalf("truncated debug is not valid UTF-8 near the cut: %q", out[MaxDebugLen-8:MaxDebugLen+8])
	}
	if !strings.HasSuffix(out, "more characters)") {
		t.Errorf("missing elision suffix: %q", out[len(out)-40:])
	}
}
