package schema

import (
	"github.com/yanun0323/errors"

	"scalper/pkg/exception"
)

// SymbolSpec holds per-instrument trading parameters.
type SymbolSpec struct {
	Name      string  `json:"name"`
	MaxSpread float64 `json:"maxSpread"`
	// TickValue is the account-currency value of a 1.0 price move on one lot.
	TickValue float64 `json:"tickValue"`
	LotStep   float64 `json:"lotStep"`
}

// Registry stores symbol specs with a fallback for unknown symbols.
type Registry struct {
	symbols  map[string]SymbolSpec
	fallback SymbolSpec
}

// NewRegistry creates an empty registry using fallback for unknown symbols.
func NewRegistry(fallback SymbolSpec) *Registry {
	return &Registry{
		symbols:  make(map[string]SymbolSpec),
		fallback: fallback,
	}
}

// Add registers a symbol spec. Zero fields inherit from the fallback.
func (r *Registry) Add(spec SymbolSpec) error {
	if spec.Name == "" {
		return exception.ErrConfigEmptySymbol
	}
	if _, ok := r.symbols[spec.Name]; ok {
		return errors.Wrap(exception.ErrConfigInvalid, "symbol already exists").With("symbol", spec.Name)
	}
	if spec.MaxSpread < 0 || spec.TickValue < 0 || spec.LotStep < 0 {
		return errors.Wrap(exception.ErrConfigInvalid, "symbol values must be >= 0").With("symbol", spec.Name)
	}
	if spec.MaxSpread == 0 {
		spec.MaxSpread = r.fallback.MaxSpread
	}
	if spec.TickValue == 0 {
		spec.TickValue = r.fallback.TickValue
	}
	if spec.LotStep == 0 {
		spec.LotStep = r.fallback.LotStep
	}
	r.symbols[spec.Name] = spec
	return nil
}

// Lookup returns the spec for name, or the fallback when name is unknown.
func (r *Registry) Lookup(name string) SymbolSpec {
	if spec, ok := r.symbols[name]; ok {
		return spec
	}
	spec := r.fallback
	spec.Name = name
	return spec
}

// Has reports whether name was registered explicitly.
func (r *Registry) Has(name string) bool {
	_, ok := r.symbols[name]
	return ok
}

// Fallback returns the spec used for unknown symbols.
func (r *Registry) Fallback() SymbolSpec {
	return r.fallback
}

// SymbolCount returns the number of registered symbols.
func (r *Registry) SymbolCount() int {
	return len(r.symbols)
}
