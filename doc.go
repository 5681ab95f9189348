// Package rwportal is the server side of the RW community portal: session
// handling, the authenticated API client, route guarding and the list view
// pattern shared by the resource pages.
//
// Sessions:
//   - SessionStore is the only writer of the session. It moves between
//     unauthenticated, verifying and authenticated. A persisted token is
//     never trusted until Verify resolves it into a profile.
//   - Invalidate is called when the API answers 401. Only the first caller
//     sees true, so overlapping requests that all get rejected produce a
//     single logout and a single redirect.
//
// API client:
//   - Client attaches the bearer token of the bound session and classifies
//     responses into the error kinds in errors.go. A 401 drops the session,
//     a 403 does not.
//
// List views:
//   - ResourceList fetches pages with ListParams and commits only the newest
//     response. ViewRegistry keeps the sequencing per session and view so it
//     survives across requests.
package rwportal
