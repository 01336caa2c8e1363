// Command r2logs retrieves Cloudflare Logpush logs stored in R2 for a time
// range.
//
//	r2logs [OPTIONS] [START_TIME] [END_TIME] [COMMAND]
//
//	r2logs                                             # last 5 minutes
//	r2logs 2024-01-11T15:00:00Z 2024-01-11T15:05:00Z
//	r2logs 2024-01-11T15:00:00Z 2024-01-11T15:05:00Z list
//	r2logs -p 2024-01-11T15:00:00Z                     # pretty, until now
//
// Credentials are read from CF_API_KEY, R2_ACCESS_KEY_ID,
// R2_SECRET_ACCESS_KEY, CF_ACCOUNT_ID and BUCKET_NAME, or from a .env file
// in the working directory.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}
