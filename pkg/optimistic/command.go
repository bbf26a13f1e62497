package optimistic

import "context"

// Command is a local state change paired with the remote call that makes it durable.
// Apply and Rollback run on the caller's side; Execute runs on the dispatcher worker.
type Command interface {
	// Key identifies the resource the command touches
	Key() string

	// Apply performs the local change immediately
	Apply()

	// Rollback undoes Apply after a failed Execute
	Rollback()

	// Execute performs the remote call
	Execute(ctx context.Context) error
}

// Func adapts plain functions to the Command interface
type Func struct {
	Name       string
	ApplyFn    func()
	RollbackFn func()
	ExecuteFn  func(ctx context.Context) error
}

// Key returns the command name
func (f Func) Key() string {
	return f.Name
}

// Apply runs ApplyFn if set
func (f Func) Apply() {
	if f.ApplyFn != nil {
		f.ApplyFn()
	}
}

// Rollback runs RollbackFn if set
func (f Func) Rollback() {
	if f.RollbackFn != nil {
		f.RollbackFn()
	}
}

// Execute runs ExecuteFn if set
func (f Func) Execute(ctx context.Context) error {
	if f.ExecuteFn == nil {
		return nil
	}
	return f.ExecuteFn(ctx)
}
