// SPDX-License-Identifier: MPL-2.0

// Package container drives the Docker and Podman CLIs for toolchain stages
// that run inside a build image.
package container
