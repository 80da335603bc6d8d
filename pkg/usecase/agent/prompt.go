package agent

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/dossier/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

type promptInput struct {
	Tools         []tool.Descriptor
	Prompts       string
	Guidance      []string
	Iteration     int
	MaxIterations int
}

func buildSystemPrompt(input promptInput) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, input); err != nil {
		return "", goerr.Wrap(err, "failed to execute system prompt template")
	}
	return buf.String(), nil
}

func directivePrompt(name string) string {
	return "Before answering, call `" + name + "`. This question depends on record dates, and the answer must be based on its result."
}
