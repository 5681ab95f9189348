// Package e2e drives the portal in a headless browser against an in
// memory RW API. The tests only build with the e2e tag:
//
//	go run github.com/playwright-community/playwright-go/cmd/playwright install chromium
//	go test -tags e2e ./e2e/...
package e2e
