// Package preflight provides readiness checks for the external binaries,
// filesystem paths and remote services that yt2pod depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and refuses to start when a required
//     check fails.
//   - The CLI "yt2pod config check" command renders every result.
//
// Each remote check is gated by its config toggle; disabled features are skipped.
package preflight
