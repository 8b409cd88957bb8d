package broadcast

import (
	"regexp"
	"sort"
	"strconv"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/whatsapp"
)

var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// renderComponents substitutes {{key}} placeholders in text parameters with
// the contact's variables. {{name}} falls back to the contact name. When no
// components were given but the contact has numbered variables, they become
// the body parameters in order.
func renderComponents(components []whatsapp.ComponentObj, c Contact) ([]whatsapp.ComponentObj, error) {
	if len(components) == 0 {
		return bodyFromVariables(c.Variables), nil
	}

	out := make([]whatsapp.ComponentObj, len(components))
	for i, comp := range components {
		comp.Parameters = append([]whatsapp.ParameterObj(nil), comp.Parameters...)
		for j, p := range comp.Parameters {
			if p.Type != "text" {
				continue
			}
			text, err := substitute(p.Text, c)
			if err != nil {
				return nil, err
			}
			comp.Parameters[j].Text = text
		}
		out[i] = comp
	}
	return out, nil
}

func substitute(text string, c Contact) (string, error) {
	var missing string
	rendered := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := c.Variables[key]; ok {
			return v
		}
		if key == "name" && c.Name != "" {
			return c.Name
		}
		if missing == "" {
			missing = key
		}
		return m
	})
	if missing != "" {
		return "", apperr.Validationf("missing variable %q", missing)
	}
	return rendered, nil
}

func bodyFromVariables(vars map[string]string) []whatsapp.ComponentObj {
	var keys []int
	for k := range vars {
		if n, err := strconv.Atoi(k); err == nil && n > 0 {
			keys = append(keys, n)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Ints(keys)

	params := make([]whatsapp.ParameterObj, 0, len(keys))
	for _, n := range keys {
		params = append(params, whatsapp.ParameterObj{Type: "text", Text: vars[strconv.Itoa(n)]})
	}
	return []whatsapp.ComponentObj{{Type: "body", Parameters: params}}
}
