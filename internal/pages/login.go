// File: internal/pages/login.go
package pages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// DefaultLoginPath is where the identity provider serves its form.
const DefaultLoginPath = "/account/login"

var (
	usernameLoc = locator.CSS("username",
		"input[name='LoginInput.UserNameOrEmailAddress']",
		"#LoginInput_UserNameOrEmailAddress",
		"input[name='username']",
		"#i0116",
	)
	passwordLoc = locator.CSS("password",
		"input[type='password']",
		"input[name='LoginInput.Password']",
		"#password-input",
		"#i0118",
	)
	submitLoc = locator.New("login submit",
		driver.CSS("button[type='submit']"),
		driver.XPath("//button[contains(normalize-space(.),'Giriş') or contains(normalize-space(.),'Login') or contains(normalize-space(.),'Sign in')]"),
		driver.XPath("//a[@type='submit' or contains(normalize-space(.),'Giriş')]"),
	)
	postLoginLoc = locator.New("post-login marker",
		driver.XPath("//h2[normalize-space(.)='Modüller']"),
		driver.CSS("nav.h-full.w-\\[60px\\]"),
		driver.CSS(".panel__wrapper-shadow-default"),
	)
)

// requestSubmit submits the password field's form the way a user agent would.
const requestSubmit = `function() {
	if (!this.form) { return false; }
	if (this.form.requestSubmit) { this.form.requestSubmit(); } else { this.form.submit(); }
	return true;
}`

// LoginPage signs a user in through the identity provider form.
type LoginPage struct {
	s *session.Session
	// Path is resolved against the session base URL.
	Path string
}

func NewLoginPage(s *session.Session) *LoginPage {
	return &LoginPage{s: s, Path: DefaultLoginPath}
}

// Open loads the form and waits for the username field.
func (p *LoginPage) Open(ctx context.Context) error {
	if err := p.s.Open(ctx, p.Path); err != nil {
		return err
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, usernameLoc, p.s.Timeouts.Long); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	return nil
}

// FillCredentials types both fields. The username is read back; password
// fields are not, some providers mask their value.
func (p *LoginPage) FillCredentials(ctx context.Context, username, password string) error {
	in := p.s.Interact
	if err := in.SafeType(ctx, p.s.Driver, usernameLoc, username, interact.WithVerify()); err != nil {
		return err
	}
	return in.SafeType(ctx, p.s.Driver, passwordLoc, password)
}

// Submit sends the form and waits until the browser has left the login
// page. Enter in the password field comes first, then the submit button,
// then a scripted form submission.
func (p *LoginPage) Submit(ctx context.Context) error {
	attempts := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"enter", p.pressEnter},
		{"button", func(ctx context.Context) error { return p.s.Interact.SafeClick(ctx, p.s.Driver, submitLoc) }},
		{"form", p.submitForm},
	}

	for _, a := range attempts {
		if err := a.run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.s.Logger.Debug("Login submit attempt failed.", zap.String("attempt", a.name), zap.Error(err))
			continue
		}
		if err := p.waitLoggedIn(ctx, p.s.Timeouts.Short); err == nil {
			p.s.Logger.Info("Logged in.", zap.String("via", a.name))
			return nil
		} else if !wait.IsTimeout(err) {
			return err
		}
	}
	if err := p.waitLoggedIn(ctx, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("login submit: %w", err)
	}
	return nil
}

// Login runs Open, FillCredentials and Submit.
func (p *LoginPage) Login(ctx context.Context, username, password string) error {
	if err := p.Open(ctx); err != nil {
		return err
	}
	if err := p.FillCredentials(ctx, username, password); err != nil {
		return err
	}
	return p.Submit(ctx)
}

// LoggedIn reports whether the browser left the login path or a post-login
// landmark is showing.
func (p *LoginPage) LoggedIn(ctx context.Context) (bool, error) {
	url, err := p.s.Driver.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	if !strings.Contains(strings.ToLower(url), strings.ToLower(p.Path)) {
		return true, nil
	}
	return p.s.Interact.IsDisplayed(ctx, p.s.Driver, postLoginLoc)
}

func (p *LoginPage) waitLoggedIn(ctx context.Context, budget time.Duration) error {
	return wait.Until(ctx, "login to complete", p.LoggedIn, p.s.Timeouts.Opts(budget)...)
}

func (p *LoginPage) pressEnter(ctx context.Context) error {
	el, err := passwordLoc.FirstVisible(ctx, p.s.Driver)
	if err != nil {
		return err
	}
	return el.Press(ctx, "Enter")
}

func (p *LoginPage) submitForm(ctx context.Context) error {
	el, err := passwordLoc.First(ctx, p.s.Driver)
	if err != nil {
		return err
	}
	res, err := el.Eval(ctx, requestSubmit)
	if err != nil {
		return err
	}
	if ok, _ := res.(bool); !ok {
		return fmt.Errorf("password field has no form")
	}
	return nil
}
