// internal/extract/state.go
package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/jsonquery"
	"github.com/dop251/goja"
	"github.com/law-makers/marketwatch/internal/sites"
)

// ErrStateNotFound is returned when no script carries the embedded state
var ErrStateNotFound = errors.New("embedded state not found")

// scriptTimeout bounds the evaluation of one inline script
const scriptTimeout = 2 * time.Second

type stateItem struct {
	node *jsonquery.Node
}

func stateItems(document string, spec *sites.StateSpec) ([]item, error) {
	if spec == nil || spec.Items == "" {
		return nil, fmt.Errorf("embedded state items path is required")
	}

	payload, err := findState(document, spec)
	if err != nil {
		return nil, err
	}

	root, err := jsonquery.Parse(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded state: %w", err)
	}

	nodes, err := jsonquery.QueryAll(root, spec.Items)
	if err != nil {
		return nil, fmt.Errorf("invalid items path %q: %w", spec.Items, err)
	}

	items := make([]item, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, stateItem{node: n})
	}
	return items, nil
}

// findState returns the JSON text of the state. Without a variable the
// script body is taken as JSON; with one, the script is evaluated and the
// variable serialized.
func findState(document string, spec *sites.StateSpec) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	selector := spec.Script
	if selector == "" {
		selector = "script"
	}

	var (
		payload string
		lastErr error
	)
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if _, external := s.Attr("src"); external {
			return true
		}
		body := strings.TrimSpace(s.Text())
		if body == "" {
			return true
		}

		if spec.Variable == "" {
			payload = body
			return false
		}
		if !strings.Contains(body, lastSegment(spec.Variable)) {
			return true
		}

		out, err := evalState(body, spec.Variable)
		if err != nil {
			lastErr = err
			return true
		}
		payload = out
		return false
	})

	if payload == "" {
		if lastErr != nil {
			return "", fmt.Errorf("%w: %v", ErrStateNotFound, lastErr)
		}
		return "", ErrStateNotFound
	}
	return payload, nil
}

// evalState runs an inline script in a minimal browser-like global scope
// and returns JSON.stringify(variable)
func evalState(script, variable string) (string, error) {
	vm := goja.New()
	vm.Set("window", vm.GlobalObject())
	vm.Set("self", vm.GlobalObject())
	vm.Set("document", map[string]interface{}{})
	vm.Set("console", map[string]interface{}{
		"log":   func(call goja.FunctionCall) goja.Value { return nil },
		"error": func(call goja.FunctionCall) goja.Value { return nil },
	})

	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	if _, err := vm.RunString(script); err != nil {
		return "", fmt.Errorf("script failed: %w", err)
	}

	v, err := vm.RunString("JSON.stringify(" + variable + ")")
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s: %w", variable, err)
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("%s is not defined", variable)
	}
	return v.String(), nil
}

func lastSegment(variable string) string {
	if i := strings.LastIndex(variable, "."); i >= 0 {
		return variable[i+1:]
	}
	return variable
}

func (s stateItem) value(f sites.Field, _ string) string {
	if f.IsZero() {
		return ""
	}
	n := s.node
	if f.Selector != "" {
		found, err := jsonquery.Query(n, f.Selector)
		if err != nil || found == nil {
			return ""
		}
		n = found
	}
	return strings.TrimSpace(n.InnerText())
}

func (s stateItem) description(f sites.Field) string {
	return Markdown(s.value(f, ""))
}
