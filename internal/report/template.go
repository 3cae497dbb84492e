package report

import (
	"fmt"
	"math"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer renders Liquid templates with a parse cache and the filters
// the digest templates use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with custom filters registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ 0.423 | percent }} -> "42.3%"
	r.engine.RegisterFilter("percent", func(value float64) string {
		return fmt.Sprintf("%.1f%%", value*100)
	})

	// {{ 3.14159 | round1 }} -> "3.1"
	r.engine.RegisterFilter("round1", func(value float64) string {
		return fmt.Sprintf("%.1f", math.Round(value*10)/10)
	})
}

// Render parses (or reuses) the template source and renders it with the
// given bindings.
func (r *Renderer) Render(source string, bindings map[string]interface{}) (string, error) {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}
