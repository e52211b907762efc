// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	ManifestNotFoundId Id = iota + 1
	ManifestInvalidId
	SDKRootMissingId
	ToolchainNotFoundId
	NativeLibraryMissingId
	RequirementUnavailableId
	ContainerEngineNotFoundId
	ConfigLoadFailedId
	BuildTimedOutId
	PublishFailedId
)

type (
	// Id identifies a troubleshooting page.
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a Markdown troubleshooting page.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the page with glamour using the named style ("dark",
// "light", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if links := append(i.DocLinks(), i.extLinks...); len(links) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range links {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# No manifest found!

droidpack reads ` + "`buildozer.spec`" + ` from the current directory unless
manifest fragments are given with ` + "`--manifest`" + `.

## Things you can try:
- Run droidpack from the application directory
- Pass every fragment explicitly:
~~~
$ droidpack build -m buildozer.spec -m release.toml
~~~`,
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# The manifest is invalid!

Every problem is listed with its section, key and source line.

## Things you can try:
- Check that ` + "`title`" + `, ` + "`package.name`" + ` and ` + "`package.domain`" + ` are set in ` + "`[app]`" + `
- Pin each requirement at most once across all fragments
- Keep ` + "`android.ndk_api <= android.minapi <= android.api`" + `
- Inspect the merged manifest without building:
~~~
$ droidpack validate
~~~`,
	}

	sdkRootMissingIssue = &Issue{
		id: SDKRootMissingId,
		mdMsg: `
# Android SDK or NDK not found!

The toolchain needs both roots before any architecture is built.

## Things you can try:
- Set the roots in the manifest:
~~~ini
[app]
android.sdk_path = ~/Android/Sdk
android.ndk_path = ~/Android/Sdk/ndk/25.2.9519653
~~~

- Or export them:
~~~
$ export ANDROIDSDK=$HOME/Android/Sdk
$ export ANDROIDNDK=$ANDROIDSDK/ndk/25.2.9519653
~~~

- Check the result with ` + "`droidpack doctor`",
		extLinks: []HttpLink{"https://developer.android.com/studio/command-line/sdkmanager"},
	}

	toolchainNotFoundIssue = &Issue{
		id: ToolchainNotFoundId,
		mdMsg: `
# The packaging toolchain is not installed!

The native runtime runs python-for-android (` + "`p4a`" + `) from your PATH.

## Things you can try:
- Install it:
~~~
$ pip install python-for-android
~~~

- Or build inside the buildozer image:
~~~
$ droidpack build --runtime container
~~~

- Or replace the stages with your own commands in a ` + "`[toolchain]`" + ` section`,
		extLinks: []HttpLink{"https://python-for-android.readthedocs.io/"},
	}

	nativeLibraryMissingIssue = &Issue{
		id: NativeLibraryMissingId,
		mdMsg: `
# A native library is missing!

Each architecture needs every library of ` + "`android.native_libs`" + ` under
` + "`<libs_dir>/<arch>/`" + `. Architectures with missing libraries are skipped;
the others are still built.

## Things you can try:
- Copy the prebuilt library for the reported architecture:
~~~
libs/
  arm64-v8a/libfluidsynth.so
  armeabi-v7a/libfluidsynth.so
~~~

- Build only the architectures you have libraries for:
~~~
$ droidpack build --arch arm64-v8a
~~~`,
	}

	requirementUnavailableIssue = &Issue{
		id: RequirementUnavailableId,
		mdMsg: `
# A requirement cannot be built for an architecture!

The requirement needs native code and neither a recipe nor a prebuilt wheel
matches the architecture and version.

## Things you can try:
- Drop the version pin, or pin a version the recipe supports
- Put a prebuilt wheel in ` + "`android.wheels_dir`" + `:
~~~
wheels/arm64-v8a/numpy-1.26.4-cp311-cp311-android_21_arm64_v8a.whl
~~~

- Extend the recipe catalog with ` + "`android.recipe_catalog`",
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine available!

The container runtime needs Docker or Podman.

## Things you can try:
- Install Podman (https://podman.io) or Docker (https://docs.docker.com/get-docker/)
- Choose the engine in your configuration:
~~~cue
container_engine: "docker"
~~~

- Or build on the host:
~~~
$ droidpack build --runtime native
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load the configuration!

## Things you can try:
- Check the CUE syntax of your config file
- Print the effective configuration:
~~~
$ droidpack config show
~~~

- Start over from the defaults:
~~~
$ droidpack config init --force
~~~`,
	}

	buildTimedOutIssue = &Issue{
		id: BuildTimedOutId,
		mdMsg: `
# An architecture build timed out!

The first build of an architecture downloads and compiles every recipe and
can take a long time. Later builds reuse the cached toolchain state.

## Things you can try:
- Raise the limit:
~~~
$ droidpack build --timeout 2h
~~~

- Read the per-architecture build log next to the packages`,
	}

	publishFailedIssue = &Issue{
		id: PublishFailedId,
		mdMsg: `
# Publishing failed!

## Things you can try:
- Check the bucket name and region in the ` + "`publish`" + ` configuration
- Check your AWS credentials (` + "`AWS_PROFILE`, `AWS_ACCESS_KEY_ID`" + `)
- For S3-compatible storage set ` + "`publish.endpoint`",
	}

	issues = map[Id]*Issue{
		manifestNotFoundIssue.Id():        manifestNotFoundIssue,
		manifestInvalidIssue.Id():         manifestInvalidIssue,
		sdkRootMissingIssue.Id():          sdkRootMissingIssue,
		toolchainNotFoundIssue.Id():       toolchainNotFoundIssue,
		nativeLibraryMissingIssue.Id():    nativeLibraryMissingIssue,
		requirementUnavailableIssue.Id():  requirementUnavailableIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		buildTimedOutIssue.Id():           buildTimedOutIssue,
		publishFailedIssue.Id():           publishFailedIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
