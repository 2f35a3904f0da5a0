package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/TylerBrock/colorjson"
	"github.com/fatih/color"

	"loadq/internal/runner"
)

// PrintResponse writes a response the way it came over the wire: status
// line, headers, a blank line, then the body. JSON bodies are indented.
func PrintResponse(w io.Writer, resp *runner.Response) {
	fmt.Fprintf(w, "%s %s\n", resp.Proto, ColorStatus(resp.StatusCode, resp.Status))

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, v := range resp.Header[name] {
			fmt.Fprintf(w, "%s: %s\n", color.CyanString(name), v)
		}
	}

	fmt.Fprintln(w)
	PrintBody(w, resp.Body, resp.Header.Get("Content-Type"))
}

func PrintBody(w io.Writer, body, contentType string) {
	if body == "" {
		return
	}
	if strings.Contains(contentType, "json") {
		var obj any
		if err := json.Unmarshal([]byte(body), &obj); err == nil {
			f := colorjson.NewFormatter()
			f.Indent = 2
			f.DisabledColor = color.NoColor
			if s, err := f.Marshal(obj); err == nil {
				fmt.Fprintln(w, string(s))
				return
			}
		}
	}
	fmt.Fprintln(w, body) // fallback to raw
}

// ColorStatus colors a status line by class.
func ColorStatus(code int, status string) string {
	switch {
	case code >= 200 && code < 300:
		return color.GreenString("%s", status)
	case code >= 300 && code < 400:
		return color.YellowString("%s", status)
	case code >= 400:
		return color.RedString("%s", status)
	default:
		return status
	}
}
