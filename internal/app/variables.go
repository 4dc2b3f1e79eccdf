package app

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/me/choppy/pkg/model"
)

var (
	outputVarRe = regexp.MustCompile(`\{\{-?\s*([A-Za-z_][A-Za-z0-9_]*)`)
	condVarRe   = regexp.MustCompile(`\{%-?\s*(?:if|elif)\s+(?:not\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
	forRe       = regexp.MustCompile(`\{%-?\s*for\s+([A-Za-z_][A-Za-z0-9_,\s]*?)\s+in\s+([A-Za-z_][A-Za-z0-9_]*)`)
	identRe     = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

var templateKeywords = map[string]bool{
	"true": true, "false": true, "none": true, "True": true, "False": true, "None": true,
	"loop": true, "forloop": true,
}

// TemplateVariables returns the undeclared variables a template references,
// sorted. Loop targets are not reported.
func TemplateVariables(text string) []string {
	found := make(map[string]bool)
	bound := make(map[string]bool)

	for _, m := range forRe.FindAllStringSubmatch(text, -1) {
		for _, name := range identRe.FindAllString(m[1], -1) {
			bound[name] = true
		}
		found[m[2]] = true
	}
	for _, re := range []*regexp.Regexp{outputVarRe, condVarRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			found[m[1]] = true
		}
	}

	var out []string
	for name := range found {
		if bound[name] || templateKeywords[name] {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func templateVariables(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return TemplateVariables(string(data)), nil
}

// Variables returns every variable a samples record must (or may) supply for
// a: the variables of both templates plus sample_id, minus project_name. With
// noDefault, variables covered by the defaults file are left out.
func Variables(a *App, noDefault bool) ([]string, error) {
	set := map[string]bool{model.SampleIDKey: true}
	for _, p := range []string{a.InputsPath(), a.WorkflowPath()} {
		vars, err := templateVariables(p)
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			set[v] = true
		}
	}
	delete(set, model.ProjectNameKey)

	vars := make([]string, 0, len(set))
	for v := range set {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	if noDefault {
		d, err := LoadDefaults(a)
		if err != nil {
			return nil, err
		}
		vars = d.Diff(vars)
	}
	return vars, nil
}

// CheckHeader returns the variables a needs that header does not provide,
// sorted. With noDefault, variables covered by defaults count as provided.
func CheckHeader(a *App, header []string, noDefault bool) ([]string, error) {
	vars, err := Variables(a, noDefault)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, v := range vars {
		if !have[v] {
			missing = append(missing, v)
		}
	}
	return missing, nil
}
