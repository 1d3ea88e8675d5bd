package driver

import (
	"context"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/machreg-e2e/internal/errs"
)

func TestLiteralText_IsCaseSensitive(t *testing.T) {
	t.Parallel()

	re := literalText("myLabel1: myLabelValue1")
	if !re.MatchString("    myLabel1: myLabelValue1") {
		t.Fatalf("%s should match the exact line", re)
	}
	if re.MatchString("    MYLABEL1: MYLABELVALUE1") {
		t.Fatalf("%s matched a wrong-case line", re)
	}
	if literalText("machine").MatchString("Machine Registrations") {
		t.Fatal("lowercase name matched capitalized menu text")
	}
	if !literalText("Machine Registration: reg-1 Active").MatchString("Machine Registration: reg-1\n      Active") {
		t.Fatal("whitespace between words must be relaxed")
	}
}

func testLiteralText_MatchesOnlyItself(t *rapid.T) {
	words := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9.*+?()\[\]{}|^$:-]{1,8}`), 1, 4).Draw(t, "words")
	text := strings.Join(words, " ")
	re := literalText(text)

	if !re.MatchString("prefix " + text + " suffix") {
		t.Fatalf("%s does not match %q", re, text)
	}
	if flipped := strings.ToUpper(text); flipped != text && re.MatchString(flipped) {
		t.Fatalf("%s matched case-changed %q", re, flipped)
	}
}

func TestLiteralText_MatchesOnlyItself(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testLiteralText_MatchesOnlyItself)
}

func TestRequestWaiter_ForgetsInterceptorAfterTimeout(t *testing.T) {
	t.Parallel()
	d := &Playwright{timeout: time.Millisecond}
	ctx := context.Background()

	w, err := d.Intercept(ctx, "POST", "/v3-public/localProviders/local*")
	if err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	if err := w.Wait(ctx, 0); errs.CodeOf(err) != errs.Timeout {
		t.Fatalf("Wait = %v, want Timeout", err)
	}
	if n := len(d.interceptors); n != 0 {
		t.Fatalf("%d interceptors left after timeout", n)
	}
}

func TestRequestWaiter_ForgetsInterceptorOnCancel(t *testing.T) {
	t.Parallel()
	d := &Playwright{timeout: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())

	kept, err := d.Intercept(ctx, "GET", "/keep")
	if err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	w, err := d.Intercept(ctx, "POST", "/login")
	if err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	cancel()
	if err := w.Wait(ctx, 0); err != context.Canceled {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
	if len(d.interceptors) != 1 || d.interceptors[0] != kept.(*requestWaiter).ic {
		t.Fatalf("cancel removed the wrong interceptor: %+v", d.interceptors)
	}
}
