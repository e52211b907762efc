// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

type (
	// RefLister lists the refs a remote repository advertises.
	RefLister interface {
		ListRefs(ctx context.Context, url string) ([]string, error)
	}

	// GitRefLister talks to remotes with go-git, without cloning.
	GitRefLister struct{}
)

// ListRefs returns the short names of every branch and tag on url.
func (GitRefLister) ListRefs(ctx context.Context, url string) ([]string, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list refs of %s: %w", url, err)
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name().Short())
	}
	return names, nil
}

// checkLocator validates the repository URL of a git locator. Only git
// locators can be checked; other VCS schemes pass through.
func checkLocator(vcs, url string) error {
	if !strings.HasPrefix(vcs, "git+") {
		return nil
	}
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return fmt.Errorf("invalid repository URL %q: %w", url, err)
	}
	if ep.Host == "" && ep.Protocol != "file" {
		return fmt.Errorf("repository URL %q has no host", url)
	}
	return nil
}
