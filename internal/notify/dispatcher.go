// Package notify sends recovery emails. The engine only cares whether a
// send succeeded; templates and rendering stay here, out of the scheduler.
package notify

import "context"

type Dispatcher interface {
	Send(ctx context.Context, to, subject, templateID string, data map[string]string) error
}
