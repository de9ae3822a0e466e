// Package script composes the sandboxed Python program around the user's
// strategy code and parses the delimited payload it prints back.
package script

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"ubacktest/internal/domain"
)

// NewKey returns a fresh random delimiter key for one composition. A fresh
// key per run means user data can never collide with the payload markers.
func NewKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// scriptTemplate wraps the user's code with data injection, output
// validation, score-cutoff truncation, and the delimited payload print.
// The market data rides in as base64 JSON so user data containing quotes,
// braces, or marker-like substrings can never break out into source text.
var scriptTemplate = template.Must(template.New("strategy").Parse(`import base64
import json

import pandas as pd

{{.UserCode}}

_columns = json.loads(base64.b64decode("{{.DataB64}}").decode("utf-8"))
_df = pd.DataFrame(_columns)
if len(_df) <= 3:
    raise Exception("not enough rows of data to run a backtest")

_out = strategy(_df)

if not isinstance(_out, pd.DataFrame):
    raise Exception("strategy() must return a pandas DataFrame")
_out.columns = [str(_c).lower() for _c in _out.columns]
if list(_out.columns).count("signal") != 1:
    raise Exception("the returned DataFrame must contain exactly one 'signal' column")
if len(_out) == 0:
    raise Exception("the returned DataFrame is empty")
if len(_out) != len(_df):
    raise Exception("the returned DataFrame must keep the original row count")
if not _out.index.is_unique:
    raise Exception("the returned DataFrame index contains duplicate entries")
_out["signal"] = _out["signal"].ffill().fillna(0)
if (_out["signal"].abs() > 1).any():
    raise Exception("signal values must stay between -1 and 1")

_out = _out[_out["timestamp"] >= {{.Cutoff}}]

_reserved = {"timestamp", "open", "high", "low", "close", "volume", "signal"}
_data = {}
for _c in _out.columns:
    if _c in _reserved or len(_data) >= 6:
        continue
    if pd.api.types.is_numeric_dtype(_out[_c]):
        _data[_c] = [round(float(_v), 4) for _v in _out[_c].fillna(0)]

_payload = {
    "result": {"signal": [round(float(_v), 3) for _v in _out["signal"]]},
    "data": _data,
}
print("{{.Key}}START{{.Key}}" + json.dumps(_payload) + "{{.Key}}END{{.Key}}")
`))

// Compose builds the full sandbox program: the user's code verbatim, the
// injected full series, and the cutoff timestamp marking the first scored
// bar. The key must come from NewKey.
func Compose(userCode string, full domain.BarSeries, cutoff int64, key string) (string, error) {
	if strings.TrimSpace(userCode) == "" {
		return "", &domain.UserInputError{Msg: "the strategy code is empty"}
	}

	columns, err := json.Marshal(full)
	if err != nil {
		return "", fmt.Errorf("serializing market data: %w", err)
	}

	var b strings.Builder
	err = scriptTemplate.Execute(&b, struct {
		UserCode string
		DataB64  string
		Cutoff   int64
		Key      string
	}{
		UserCode: userCode,
		DataB64:  base64.StdEncoding.EncodeToString(columns),
		Cutoff:   cutoff,
		Key:      key,
	})
	if err != nil {
		return "", fmt.Errorf("rendering script template: %w", err)
	}
	return b.String(), nil
}
