package main

import (
	"fmt"
	"io"
	"net/url"

	"github.com/pkg/browser"
)

// browserNavigator is the CLI's page: a fixed URL given on the command line.
// Navigating opens the target in the user's default browser, and always
// prints it so the user can open it by hand if that fails.
type browserNavigator struct {
	current string
	out     io.Writer
}

func (n *browserNavigator) CurrentURL() string {
	return n.current
}

func (n *browserNavigator) Navigate(target string) error {
	target = resolveURL(n.current, target)
	fmt.Fprintf(n.out, "Opening in your browser:\n\n  %s\n\n", target)

	if err := browser.OpenURL(target); err != nil {
		fmt.Fprintln(n.out, "Could not open browser automatically. Please open the URL above manually.")
	}
	return nil
}

// recordingNavigator stands in for the browser tab that hit the redirect URI.
// The navigation target is handed back to that tab instead of opened.
type recordingNavigator struct {
	current string
	target  string
}

func (n *recordingNavigator) CurrentURL() string {
	return n.current
}

func (n *recordingNavigator) Navigate(target string) error {
	n.target = target
	return nil
}

// resolveURL resolves ref against base the way a browser resolves a link.
// Unparseable input is returned as ref.
func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
