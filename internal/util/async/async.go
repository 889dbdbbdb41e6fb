package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a named unit of work for RunParallel.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel runs each task in its own goroutine and waits for all of them.
// Failures are prefixed with the task name and joined in task order, so the
// result does not depend on scheduling.
//
//	err := RunParallel(ctx, []Task{
//		{Name: "node_exporter", Func: nodeExporter.Install},
//		{Name: "otelcol", Func: otelcol.Install},
//	})
func RunParallel(ctx context.Context, tasks []Task) error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Go(func() {
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}
