package parser

import (
	"fmt"

	"github.com/maltedev/product-scanner/internal/page"
)

// Strategy is one way of finding a field. Attempt reports false when the
// page does not carry what the strategy looks for.
type Strategy[T any] struct {
	Name    string
	Attempt func(p *page.Page) (T, bool)
}

// First runs strategies in order and returns the first hit along with the
// name of the strategy that produced it. A panicking strategy counts as a
// miss and is reported through problems.
func First[T any](p *page.Page, strategies []Strategy[T]) (value T, winner string, problems []string) {
	for _, s := range strategies {
		v, ok, err := attempt(p, s)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if ok {
			return v, s.Name, problems
		}
	}
	return value, "", problems
}

func attempt[T any](p *page.Page, s Strategy[T]) (v T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name, r)
			ok = false
		}
	}()
	v, ok = s.Attempt(p)
	return v, ok, nil
}
