// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the Markdown troubleshooting
// pages droidpack shows when a build cannot start.
package issue
