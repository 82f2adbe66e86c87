package sdl2

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResource struct {
	name      string
	err       error
	destroyed *[]string
}

func (r *fakeResource) Destroy() error {
	*r.destroyed = append(*r.destroyed, r.name)
	return r.err
}

func TestDestroy(t *testing.T) {
	var destroyed []string
	renderer := &fakeResource{name: "renderer", err: errors.New("busy"), destroyed: &destroyed}
	window := &fakeResource{name: "window", destroyed: &destroyed}

	destroy(renderer, window)

	assert.Equal(t, []string{"renderer", "window"}, destroyed)
}
