// Package bench measures sequential Set throughput over one connection.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replkv/internal/client"
)

type Result struct {
	Requests int
	Errors   int
	Elapsed  time.Duration
}

func (r Result) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Requests) / r.Elapsed.Seconds()
}

func (r Result) String() string {
	return fmt.Sprintf("Total Requests: %d\nErrors:         %d\nTotal Time:     %.4f seconds\nThroughput:     %.2f OPS",
		r.Requests, r.Errors, r.Elapsed.Seconds(), r.OpsPerSecond())
}

// Run sends Set(key_i, value_i) for i in [0, iterations) and waits for each
// response. Err responses are counted; a transport failure stops the run.
func Run(ctx context.Context, addr string, iterations int) (Result, error) {
	conn, err := client.Dial(ctx, addr, 0)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	var res Result
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		err := conn.Set(fmt.Sprintf("key_%d", i), fmt.Sprintf("value_%d", i))
		res.Requests++
		var se *client.ServerError
		switch {
		case err == nil:
		case errors.As(err, &se):
			res.Errors++
		default:
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("request %d: %w", i, err)
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
