package pipeline

import "context"

// Loader reads pipeline definitions from files or directories and translates
// them into the format-agnostic Model.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Model, error)
}
