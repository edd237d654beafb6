// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"fmt"
	"html/template"
	"net/http"
	"sort"

	"vizier.dev/pythia/internal/config"
)

const (
	configZTemplateName = "configz"
	configEndpoint      = "/configz"
	configPage          = `<!DOCTYPE html>
<head>
	<title>Pythia Configuration</title>
</head>
<body>
<table>
<tr><th>Key</th><th>Value</th></tr>
{{ range . }}
<tr><td>{{ .Key }}</td><td>{{ .Value }}</td></tr>
{{ end }}
</table>
</body>
`
)

var (
	configPageTemplate = template.Must(template.New(configZTemplateName).Parse(configPage))
)

type configz struct {
	cfg config.View
}

type configZValue struct {
	Key   string
	Value interface{}
}

func (cz *configz) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	values := []configZValue{}
	flatten("", cz.cfg.AllSettings(), func(k string, v interface{}) {
		values = append(values, configZValue{Key: k, Value: v})
	})
	sort.Slice(values, func(i, j int) bool {
		return values[i].Key < values[j].Key
	})
	if err := configPageTemplate.Execute(w, values); err != nil {
		http.Error(w, fmt.Sprintf("cannot render HTML template, %s", err), http.StatusInternalServerError)
	}
}

// flatten walks nested settings and reports leaves under dotted keys.
func flatten(prefix string, settings map[string]interface{}, f func(string, interface{})) {
	for k, v := range settings {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, f)
			continue
		}
		f(key, v)
	}
}

func bindConfigz(p Params, b Bindings) error {
	cfg := p.Config()
	if !cfg.GetBool(config.TelemetryZpagesEnable) {
		return nil
	}
	b.TelemetryHandle(configEndpoint, &configz{cfg: cfg})
	return nil
}
