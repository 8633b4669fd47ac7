package resonance

import (
	"context"

	"github.com/adam-kernel/resonance-go/pkg/validation"
)

// ReflectResult pairs an asynchronous reflection with its error.
type ReflectResult struct {
	Result *validation.Result
	Err    error
}

// ReflectAsync runs Reflect in a goroutine and delivers the outcome on the
// returned channel. The channel is buffered, so an abandoned result never
// leaks the goroutine.
//
// Example:
//
//	ch := client.ReflectAsync(ctx, "how does the system feel")
//	// ... do other work ...
//	r := <-ch
//	if r.Err != nil {
//	    log.Fatal(r.Err)
//	}
//	fmt.Println(r.Result.Text)
func (c *Client) ReflectAsync(ctx context.Context, prompt string) <-chan ReflectResult {
	ch := make(chan ReflectResult, 1)
	go func() {
		result, err := c.Reflect(ctx, prompt)
		ch <- ReflectResult{Result: result, Err: err}
		close(ch)
	}()
	return ch
}
