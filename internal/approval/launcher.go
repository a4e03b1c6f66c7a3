package approval

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/quantumauth-io/quantum-go-utils/log"
)

// Launcher shows a prompt to the user. It must not block until the user
// decides; decisions come back through Service.Resolve.
type Launcher interface {
	Launch(ctx context.Context, p Prompt) error
}

type LauncherFunc func(ctx context.Context, p Prompt) error

func (f LauncherFunc) Launch(ctx context.Context, p Prompt) error { return f(ctx, p) }

// PromptURL is the approval page for p under baseURL. The UI token rides in
// the fragment, which browsers never send to a server.
func PromptURL(baseURL, uiToken string, p Prompt) string {
	u := fmt.Sprintf("%s/approve?id=%s", baseURL, url.QueryEscape(p.RequestID.String()))
	if uiToken != "" {
		u += "#ui=" + url.QueryEscape(uiToken)
	}
	return u
}

// LogLauncher only logs where the prompt can be answered.
type LogLauncher struct {
	BaseURL string
	UIToken string
}

func (l LogLauncher) Launch(_ context.Context, p Prompt) error {
	log.Info("approval waiting", "kind", p.Kind.String(), "origin", p.Origin, "url", PromptURL(l.BaseURL, l.UIToken, p))
	return nil
}

// BrowserLauncher opens the approval page with the OS URL opener.
type BrowserLauncher struct {
	BaseURL string
	UIToken string

	// Open defaults to OpenURL.
	Open func(ctx context.Context, url string) error
}

func (b BrowserLauncher) Launch(ctx context.Context, p Prompt) error {
	open := b.Open
	if open == nil {
		open = OpenURL
	}
	return open(ctx, PromptURL(b.BaseURL, b.UIToken, p))
}

// OpenURL starts the platform's default handler for u and does not wait.
func OpenURL(ctx context.Context, u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", u)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", u)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", u, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
