// Copyright 2023 The OpenSlate Authors
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
	"strings"

	"github.com/spf13/viper"

	"openslate.dev/openslate/internal/config"
)

const (
	configZTemplateName = "configz"
	configEndpoint      = "/configz"
	configPage          = `<!DOCTYPE html>
<head>
	<title>OpenSlate Evaluator Configuration</title>
</head>
<body>
<table>
<tr><th>Key</th><th>Value</th></tr>
{{ range $key, $value := . }}
<tr><td>{{ $value.Key }}</td><td>{{ $value.Value }}</td></tr>
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

// ServeHTTP serves the /configz endpoint that allows a user to view the
// configuration of the evaluator.
func (cz *configz) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	cfg, ok := cz.cfg.(*viper.Viper)
	if !ok {
		http.Error(w, "Configuration is not a *viper.Viper object", http.StatusInternalServerError)
		return
	}
	values := []configZValue{}
	for k, v := range cfg.AllSettings() {
		values = append(values, configZValue{Key: k, Value: v})
	}
	sort.Slice(values, func(lhs int, rhs int) bool {
		return strings.Compare(values[lhs].Key, values[rhs].Key) != 1
	})
	if err := configPageTemplate.Execute(w, values); err != nil {
		http.Error(w, fmt.Sprintf("cannot render HTML template, %s", err), http.StatusInternalServerError)
	}
}

func bindConfigz(mux *http.ServeMux, cfg config.View) {
	if !cfg.GetBool("telemetry.zpages.enable") {
		return
	}
	mux.Handle(configEndpoint, &configz{cfg: cfg})
}
