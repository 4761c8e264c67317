package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

const connectAttempts = 5

// session is one isolated Chromium process; nothing is shared between attempts.
type session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (s *session) close() {
	if s.browser != nil {
		_ = rod.Try(func() { s.browser.MustClose() })
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
}

func (e *Executor) launchSession(ctx context.Context, record *domain.ProxyRecord) (*session, error) {
	l := launcher.New().
		Context(ctx).
		Leakless(true).
		Headless(e.opts.Headless).
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("no-first-run").
		Set("no-default-browser-check")
	if e.opts.Bin != "" {
		l = l.Bin(e.opts.Bin)
	}
	if server := ProxyServerArg(record); server != "" {
		l = l.Proxy(server)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s := &session{launcher: l}
	b := rod.New().ControlURL(controlURL)
	for i := 0; i < connectAttempts; i++ {
		if err = b.Connect(); err == nil {
			break
		}
		time.Sleep(time.Duration(250*(i+1)) * time.Millisecond)
	}
	if err != nil {
		s.close()
		return nil, fmt.Errorf("browser connect failed: %w", err)
	}
	s.browser = b

	if err := (proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorDeny,
		BrowserContextID: b.BrowserContextID,
	}).Call(b); err != nil {
		log.Warn("disable browser downloads failed", "error", err)
	}

	if record != nil && record.HasAuth() {
		wait := b.HandleAuth(record.Username, record.Password)
		go func() {
			if err := wait(); err != nil {
				log.Debug("proxy auth handler finished", "proxy", record.Identity(), "error", err)
			}
		}()
	}

	return s, nil
}

// ProxyServerArg renders record for Chromium's --proxy-server flag.
func ProxyServerArg(record *domain.ProxyRecord) string {
	if record == nil {
		return ""
	}
	switch record.Protocol {
	case domain.ProtocolSOCKS4, domain.ProtocolSOCKS5:
		return string(record.Protocol) + "://" + record.Identity()
	default:
		return "http://" + record.Identity()
	}
}
