package prettyprint_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratabuild/strata/pkg/prettyprint"
)

func TestWrite(t *testing.T) {
	type subject struct {
		Name  string `json:"name" yaml:"name"`
		Count int    `json:"count" yaml:"count"`
	}
	in := subject{Name: "app", Count: 2}

	tests := []struct {
		name         string
		format       prettyprint.Format
		formatString string
		expectation  string
		errmsg       string
	}{
		{
			name:        "json",
			format:      prettyprint.JSONFormat,
			expectation: "{\n  \"name\": \"app\",\n  \"count\": 2\n}\n",
		},
		{
			name:        "yaml",
			format:      prettyprint.YAMLFormat,
			expectation: "name: app\ncount: 2\n",
		},
		{
			name:         "template",
			format:       prettyprint.TemplateFormat,
			formatString: "{{ .Name }} has {{ .Count }} parts\n",
			expectation:  "app has 2 parts\n",
		},
		{
			name:         "broken template",
			format:       prettyprint.TemplateFormat,
			formatString: "{{ .Name",
			errmsg:       "cannot parse format template",
		},
		{
			name:   "unknown format",
			format: prettyprint.Format("xml"),
			errmsg: "unknown format: xml",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			w := prettyprint.Writer{Out: &out, Format: test.format, FormatString: test.formatString}

			err := w.Write(in)
			if test.errmsg != "" {
				require.ErrorContains(t, err, test.errmsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expectation, out.String())
		})
	}
}
