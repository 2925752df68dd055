package support

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/storage"
)

// RegisterFlowSteps registers the steps driving the page flow.
func (tc *TestContext) RegisterFlowSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the user prefers "([^"]*)" over "([^"]*)"$`, tc.userPrefers)
	sc.Step(`^the user prefers "([^"]*)"$`, tc.userPrefersOnly)
	sc.Step(`^the user has no language preference$`, tc.noPreference)
	sc.Step(`^the prompt speed is "([^"]*)"$`, tc.promptSpeed)
	sc.Step(`^the user was prompted (\d+) minutes ago$`, tc.promptedAgo)
	sc.Step(`^the flag "([^"]*)" is off$`, tc.flagOff)
	sc.Step(`^the page "([^"]*)" loaded from "([^"]*)"$`, tc.LoadPage)
	sc.Step(`^the page "([^"]*)" with body "([^"]*)"$`, func(location, body string) error {
		return tc.pageWithBody(location, "", body)
	})
	sc.Step(`^the page "([^"]*)" in "([^"]*)" with body "([^"]*)"$`, tc.pageWithBody)
	sc.Step(`^the flow runs and the user answers "(yes|no)"$`, tc.Run)
	sc.Step(`^the flow runs and the user leaves the page$`, func() error { return tc.Run("") })
	sc.Step(`^the outcome is "([^"]*)"$`, tc.outcomeIs)
	sc.Step(`^the prompt said "([^"]*)"$`, tc.promptSaid)
	sc.Step(`^no prompt was shown$`, tc.noPrompt)
	sc.Step(`^the page navigated to "([^"]*)"$`, tc.navigatedTo)
	sc.Step(`^the page did not navigate$`, tc.notNavigated)
	sc.Step(`^the prompt time was recorded$`, tc.promptRecorded)
	sc.Step(`^the achievement "([^"]*)" is expected for "([^"]*)"$`, tc.achievementExpected)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func (tc *TestContext) userPrefers(more, less string) error {
	tc.Pref.MoreLanguages, tc.Pref.LessLanguages = splitList(more), splitList(less)
	tc.Pref = tc.Pref.Normalized()
	return storage.SetJSON(context.Background(), tc.Scopes.Sync, lang.PreferenceKey, tc.Pref)
}

func (tc *TestContext) userPrefersOnly(more string) error {
	return tc.userPrefers(more, "")
}

func (tc *TestContext) noPreference() error {
	tc.Pref = lang.Preference{}.Normalized()
	return nil
}

func (tc *TestContext) promptSpeed(speed string) error {
	s := lang.Speed(speed)
	if !s.Valid() {
		return fmt.Errorf("unknown speed %q", speed)
	}
	tc.Pref.Speed = s
	return nil
}

func (tc *TestContext) promptedAgo(minutes int) error {
	at := tc.Now.Add(-time.Duration(minutes) * time.Minute).UnixMilli()
	return storage.SetJSON(context.Background(), tc.Scopes.Local, storage.KeyLastPromptTimestamp, at)
}

func (tc *TestContext) flagOff(name string) error {
	tc.Flags[name] = false
	return nil
}

func (tc *TestContext) pageWithBody(location, htmlLang, body string) error {
	return tc.ParsePage(location, fmt.Sprintf(`<html lang="%s"><head></head><body>%s</body></html>`, htmlLang, body))
}

func (tc *TestContext) outcomeIs(want string) error {
	if string(tc.Outcome) != want {
		return fmt.Errorf("expected outcome %q, got %q (error: %v)", want, tc.Outcome, tc.RunErr)
	}
	return nil
}

func (tc *TestContext) promptSaid(want string) error {
	for _, p := range tc.Prompts {
		if p == want {
			return nil
		}
	}
	return fmt.Errorf("expected prompt %q, got %q", want, tc.Prompts)
}

func (tc *TestContext) noPrompt() error {
	if len(tc.Prompts) > 0 {
		return fmt.Errorf("expected no prompt, got %q", tc.Prompts)
	}
	return nil
}

func (tc *TestContext) navigatedTo(url string) error {
	for _, n := range tc.Navigator.History() {
		if n.URL == url {
			return nil
		}
	}
	return fmt.Errorf("expected navigation to %s, got %v", url, tc.Navigator.History())
}

func (tc *TestContext) notNavigated() error {
	if h := tc.Navigator.History(); len(h) > 0 {
		return fmt.Errorf("expected no navigation, got %v", h)
	}
	return nil
}

func (tc *TestContext) promptRecorded() error {
	var at int64
	found, err := storage.GetJSON(context.Background(), tc.Scopes.Local, storage.KeyLastPromptTimestamp, &at)
	if err != nil {
		return err
	}
	if !found || at != tc.Now.UnixMilli() {
		return fmt.Errorf("expected prompt time %d, got %d (found %v)", tc.Now.UnixMilli(), at, found)
	}
	return nil
}

func (tc *TestContext) achievementExpected(key, adapter string) error {
	var got string
	found, err := storage.GetJSON(context.Background(), tc.Scopes.Local, storage.ExpectedAchievementKey(adapter), &got)
	if err != nil {
		return err
	}
	if !found || got != key {
		return fmt.Errorf("expected achievement %q for %s, got %q", key, adapter, got)
	}
	return nil
}
