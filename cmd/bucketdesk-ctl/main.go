// Package main is the entry point for bucketdesk-ctl, a command-line client
// that runs the BucketDesk bucket operations directly against the configured
// object store, without going through the HTTP server.
package main

func main() {
	Execute()
}
