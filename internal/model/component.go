package model

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipegridgo/internal/typetag"
)

// Component is the loaded, immutable specification of a containerized unit of
// work: its identity, image, command template, and typed interface.
type Component struct {
	Name        string
	Description string
	Image       string

	// Command is the ordered argument template. Each token is either a
	// literal string or a placeholder naming a declared input.
	Command []CommandToken

	// Inputs and Outputs preserve declaration order; InputIndex and
	// OutputIndex provide name lookup.
	Inputs      []*Input
	Outputs     []*Output
	InputIndex  map[string]*Input
	OutputIndex map[string]*Output
}

// CommandToken is one element of a command template.
type CommandToken struct {
	// Literal is the token text when Input is empty.
	Literal string
	// Input names a declared input to substitute at flatten time.
	Input string
}

// IsPlaceholder reports whether the token substitutes an input value.
func (t CommandToken) IsPlaceholder() bool { return t.Input != "" }

// Input is one declared input parameter of a component.
type Input struct {
	Name     string
	Type     typetag.Tag
	Required bool
	// Default is nil when the input has no default value.
	Default *cty.Value
}

// Output is one declared output parameter of a component, with the container
// path the engine reads it from.
type Output struct {
	Name string
	Type typetag.Tag
	Path string
}
