package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/auth"
	"github.com/feedbackhq/feedbackhq/internal/feedback"
	"github.com/feedbackhq/feedbackhq/internal/notify"
	"github.com/feedbackhq/feedbackhq/internal/store"
	_ "github.com/feedbackhq/feedbackhq/internal/store/sqlite"
	"github.com/feedbackhq/feedbackhq/internal/token"
	"github.com/feedbackhq/feedbackhq/internal/workspace"
)

const testOrigin = "https://app.feedback.com"

type fixture struct {
	t      *testing.T
	router http.Handler
	db     store.Driver
	mailer *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.New(&store.DriverConfig{Driver: "sqlite", DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mailer := notify.NewRecorder()
	tokens := token.New([]byte("test-secret"), time.Hour)
	checker := access.New(db)

	srv := NewServer(Options{
		DB:         db,
		Tokens:     tokens,
		Auth:       auth.New(db, mailer, tokens, auth.DefaultLimits(), nil),
		Workspaces: workspace.New(db, mailer, checker, testOrigin, nil),
		Feedback:   feedback.New(db, mailer, checker, tokens, testOrigin, t.TempDir(), nil),
		Logger:     nil,
	})

	return &fixture{t: t, router: srv.Router(), db: db, mailer: mailer}
}

func (f *fixture) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			f.t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func reasonCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[ErrorEnvelope](t, w).Error.ReasonCode
}

// signup runs the full OTP flow and returns a session token.
func (f *fixture) signup(email, name string) string {
	f.t.Helper()
	if w := f.do("POST", "/api/v1/auth/signup/request", "", signupRequest{Email: email, FullName: name}); w.Code != http.StatusAccepted {
		f.t.Fatalf("signup request: %d %s", w.Code, w.Body.String())
	}
	code := f.mailer.LastOTP(email)
	w := f.do("POST", "/api/v1/auth/signup/verify", "", verifyRequest{Email: email, Code: code})
	if w.Code != http.StatusCreated {
		f.t.Fatalf("signup verify: %d %s", w.Code, w.Body.String())
	}
	return decodeBody[sessionResponse](f.t, w).Token
}

func (f *fixture) createWorkspace(bearer, name string) store.Workspace {
	f.t.Helper()
	w := f.do("POST", "/api/v1/workspaces", bearer, createWorkspaceRequest{Name: name, Type: "Company"})
	if w.Code != http.StatusCreated {
		f.t.Fatalf("create workspace: %d %s", w.Code, w.Body.String())
	}
	return decodeBody[store.Workspace](f.t, w)
}

func TestSignupFlow(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/api/v1/auth/signup/request", "", signupRequest{Email: "a@example.com", FullName: "Alice"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("request: %d %s", w.Code, w.Body.String())
	}

	// Wrong code first
	w = f.do("POST", "/api/v1/auth/signup/verify", "", verifyRequest{Email: "a@example.com", Code: "000000"})
	if w.Code != http.StatusBadRequest || reasonCode(t, w) != ReasonIncorrectCode {
		t.Fatalf("wrong code: %d %s", w.Code, w.Body.String())
	}

	code := f.mailer.LastOTP("a@example.com")
	w = f.do("POST", "/api/v1/auth/signup/verify", "", verifyRequest{Email: "a@example.com", Code: code})
	if w.Code != http.StatusCreated {
		t.Fatalf("verify: %d %s", w.Code, w.Body.String())
	}
	sess := decodeBody[sessionResponse](t, w)
	if sess.Token == "" || sess.User.Email != "a@example.com" {
		t.Fatalf("session: %+v", sess)
	}

	w = f.do("GET", "/api/v1/me", sess.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	if u := decodeBody[store.User](t, w); u.FullName != "Alice" {
		t.Errorf("me full name: %q", u.FullName)
	}
}

func TestSignupRejectsExistingEmail(t *testing.T) {
	f := newFixture(t)
	f.signup("a@example.com", "Alice")

	w := f.do("POST", "/api/v1/auth/signup/request", "", signupRequest{Email: "a@example.com", FullName: "Alice"})
	if w.Code != http.StatusConflict {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestSigninUnknownEmail(t *testing.T) {
	f := newFixture(t)
	w := f.do("POST", "/api/v1/auth/signin/request", "", signinRequest{Email: "ghost@example.com"})
	if w.Code != http.StatusForbidden || reasonCode(t, w) != ReasonNotInvited {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestValidationFailure(t *testing.T) {
	f := newFixture(t)
	w := f.do("POST", "/api/v1/auth/signup/request", "", signupRequest{Email: "not-an-email", FullName: "X"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	env := decodeBody[ErrorEnvelope](t, w)
	if env.Error.ReasonCode != ReasonValidationFailed {
		t.Errorf("reason: %q", env.Error.ReasonCode)
	}
	if env.Error.Fields["Email"] == "" {
		t.Errorf("fields: %v", env.Error.Fields)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	if w := f.do("GET", "/api/v1/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: %d", w.Code)
	}
	if w := f.do("GET", "/api/v1/me", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: %d", w.Code)
	}
}

func TestCreateWorkspaceAndLookup(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")

	ws := f.createWorkspace(bearer, "Blue Sky")
	if ws.Subdomain != "bluesky.feedback.com" {
		t.Errorf("subdomain: %q", ws.Subdomain)
	}

	w := f.do("GET", "/api/v1/workspaces/lookup?subdomain=bluesky.feedback.com", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[store.Workspace](t, w); got.ID != ws.ID {
		t.Errorf("lookup id: %d != %d", got.ID, ws.ID)
	}

	w = f.do("GET", "/api/v1/workspaces/lookup?subdomain=nope.feedback.com", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing lookup: %d", w.Code)
	}
}

func TestWorkspaceNameTaken(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	f.createWorkspace(bearer, "Acme")

	w := f.do("POST", "/api/v1/workspaces", bearer, createWorkspaceRequest{Name: "Acme"})
	if w.Code != http.StatusConflict {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	env := decodeBody[ErrorEnvelope](t, w)
	if env.Error.ReasonCode != ReasonNameTaken {
		t.Errorf("reason: %q", env.Error.ReasonCode)
	}
	if len(env.Error.Suggestions) == 0 {
		t.Error("no suggestions in payload")
	}
	for _, sug := range env.Error.Suggestions {
		if !strings.HasPrefix(sug, "Acme_") {
			t.Errorf("suggestion %q", sug)
		}
	}
}

func TestInviteAndMembers(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	ws := f.createWorkspace(bearer, "Acme")

	w := f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/collaborators", ws.ID), bearer,
		collaboratorInvite{Email: "collab@example.com", AccessLevel: "edit"})
	if w.Code != http.StatusCreated {
		t.Fatalf("invite: %d %s", w.Code, w.Body.String())
	}

	// Duplicate invite
	w = f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/collaborators", ws.ID), bearer,
		collaboratorInvite{Email: "collab@example.com"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate invite: %d", w.Code)
	}

	w = f.do("GET", fmt.Sprintf("/api/v1/workspaces/%d/members", ws.ID), bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("members: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Members []workspace.Member `json:"members"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Members) != 2 {
		t.Fatalf("members: %+v", resp.Members)
	}

	// Non-members cannot list
	other := f.signup("other@example.com", "Other")
	w = f.do("GET", fmt.Sprintf("/api/v1/workspaces/%d/members", ws.ID), other, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider members: %d", w.Code)
	}
}

func TestFeedbackLifecycle(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	ws := f.createWorkspace(bearer, "Acme")

	w := f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/feedback", ws.ID), bearer,
		createFeedbackRequest{Name: "Login bug", URL: "https://acme.io/login", Message: "broken"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	fb := decodeBody[store.Feedback](t, w)
	if fb.Status != store.FeedbackDraft {
		t.Errorf("status: %q", fb.Status)
	}

	name := "Login crash"
	w = f.do("PATCH", fmt.Sprintf("/api/v1/feedback/%d", fb.ID), bearer, updateFeedbackRequest{Name: &name})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[store.Feedback](t, w); got.Status != store.FeedbackEdited || got.Name != name {
		t.Errorf("after update: %+v", got)
	}

	w = f.do("POST", fmt.Sprintf("/api/v1/feedback/%d/share", fb.ID), bearer,
		shareFeedbackRequest{Emails: []string{"dev@elsewhere.com"}})
	if w.Code != http.StatusOK {
		t.Fatalf("share: %d %s", w.Code, w.Body.String())
	}
	var shared struct {
		Shared []feedback.ShareResult `json:"shared"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &shared); err != nil {
		t.Fatal(err)
	}
	if len(shared.Shared) != 1 || !strings.Contains(shared.Shared[0].URL, "/view-feedback/") {
		t.Fatalf("share result: %+v", shared.Shared)
	}

	// Sent items are immutable
	w = f.do("PATCH", fmt.Sprintf("/api/v1/feedback/%d", fb.ID), bearer, updateFeedbackRequest{Name: &name})
	if w.Code != http.StatusConflict || reasonCode(t, w) != ReasonInvalidState {
		t.Errorf("update after share: %d %s", w.Code, w.Body.String())
	}
	w = f.do("DELETE", fmt.Sprintf("/api/v1/feedback/%d", fb.ID), bearer, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("delete after share: %d", w.Code)
	}
}

func TestFeedbackMutationIsCreatorOnly(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	ws := f.createWorkspace(bearer, "Acme")

	w := f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/feedback", ws.ID), bearer,
		createFeedbackRequest{Name: "Bug"})
	fb := decodeBody[store.Feedback](t, w)

	other := f.signup("other@example.com", "Other")
	name := "hijack"
	w = f.do("PATCH", fmt.Sprintf("/api/v1/feedback/%d", fb.ID), other, updateFeedbackRequest{Name: &name})
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider update: %d", w.Code)
	}
}

func TestListAndSearchFeedback(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	ws := f.createWorkspace(bearer, "Acme")

	for _, name := range []string{"Login bug", "Search latency", "Login crash"} {
		w := f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/feedback", ws.ID), bearer,
			createFeedbackRequest{Name: name})
		if w.Code != http.StatusCreated {
			t.Fatalf("create %q: %d", name, w.Code)
		}
	}

	var listing struct {
		Feedback []store.Feedback `json:"feedback"`
	}
	w := f.do("GET", fmt.Sprintf("/api/v1/workspaces/%d/feedback", ws.ID), bearer, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Feedback) != 3 {
		t.Errorf("list: %d items", len(listing.Feedback))
	}

	w = f.do("GET", fmt.Sprintf("/api/v1/workspaces/%d/feedback/search?q=Login", ws.ID), bearer, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Feedback) != 2 {
		t.Errorf("search: %d items", len(listing.Feedback))
	}

	w = f.do("GET", fmt.Sprintf("/api/v1/workspaces/%d/feedback/drafts", ws.ID), bearer, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Feedback) != 3 {
		t.Errorf("drafts: %d items", len(listing.Feedback))
	}
}

// shareAndParseView shares a feedback item and returns the view URL's path
// plus query, relative to the API mount.
func (f *fixture) shareAndParseView(bearer string, feedbackID uint, email string) string {
	f.t.Helper()
	w := f.do("POST", fmt.Sprintf("/api/v1/feedback/%d/share", feedbackID), bearer,
		shareFeedbackRequest{Emails: []string{email}})
	if w.Code != http.StatusOK {
		f.t.Fatalf("share: %d %s", w.Code, w.Body.String())
	}
	var shared struct {
		Shared []feedback.ShareResult `json:"shared"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &shared); err != nil {
		f.t.Fatal(err)
	}
	u, err := url.Parse(shared.Shared[0].URL)
	if err != nil {
		f.t.Fatal(err)
	}
	return "/api/v1" + u.Path + "?" + u.RawQuery
}

func TestDeveloperViewAndAction(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	ws := f.createWorkspace(bearer, "Acme")

	w := f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/feedback", ws.ID), bearer,
		createFeedbackRequest{Name: "Bug"})
	fb := decodeBody[store.Feedback](t, w)

	viewPath := f.shareAndParseView(bearer, fb.ID, "dev@elsewhere.com")

	w = f.do("GET", viewPath, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("view: %d %s", w.Code, w.Body.String())
	}
	var view struct {
		Feedback store.Feedback         `json:"feedback"`
		Status   store.AssignmentStatus `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Feedback.ID != fb.ID || view.Status != store.AssignmentPending {
		t.Errorf("view: %+v", view)
	}

	// Token for another developer does not open this view
	wrong := strings.Replace(viewPath, url.QueryEscape("dev@elsewhere.com"), url.QueryEscape("other@elsewhere.com"), 1)
	if w := f.do("GET", wrong, "", nil); w.Code != http.StatusForbidden {
		t.Errorf("mismatched developer: %d", w.Code)
	}

	actionPath := strings.Replace(viewPath, "?", "/action?", 1)
	w = f.do("POST", actionPath, "", developerActionRequest{Action: "acknowledged"})
	if w.Code != http.StatusOK {
		t.Fatalf("action: %d %s", w.Code, w.Body.String())
	}
	link := decodeBody[store.FeedbackDeveloper](t, w)
	if link.Status != store.AssignmentAcknowledged || link.ActionTime == nil {
		t.Errorf("link: %+v", link)
	}

	// Pending is not a developer action
	w = f.do("POST", actionPath, "", developerActionRequest{Action: "pending"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("pending action: %d", w.Code)
	}
}

func TestDeveloperFeedbackListing(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	ws := f.createWorkspace(bearer, "Acme")

	w := f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/feedback", ws.ID), bearer,
		createFeedbackRequest{Name: "Bug"})
	fb := decodeBody[store.Feedback](t, w)
	viewPath := f.shareAndParseView(bearer, fb.ID, "dev@elsewhere.com")

	// Reuse the token from the view URL for the listing endpoint
	u, err := url.Parse(viewPath)
	if err != nil {
		t.Fatal(err)
	}
	w = f.do("GET", "/api/v1/developers/feedback?"+u.RawQuery, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("listing: %d %s", w.Code, w.Body.String())
	}
	var listing struct {
		Feedback []store.Feedback `json:"feedback"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Feedback) != 1 || listing.Feedback[0].ID != fb.ID {
		t.Errorf("listing: %+v", listing.Feedback)
	}
}

func (f *fixture) multipart(path, bearer, filename string, payload []byte) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		f.t.Fatal(err)
	}
	if _, err := part.Write(payload); err != nil {
		f.t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		f.t.Fatal(err)
	}

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+bearer)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestUploads(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")
	ws := f.createWorkspace(bearer, "Acme")

	w := f.do("POST", fmt.Sprintf("/api/v1/workspaces/%d/feedback", ws.ID), bearer,
		createFeedbackRequest{Name: "Bug"})
	fb := decodeBody[store.Feedback](t, w)

	attachPath := fmt.Sprintf("/api/v1/feedback/%d/attachment", fb.ID)
	w = f.multipart(attachPath, bearer, "shot.png", []byte("png-bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("attachment: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[store.Feedback](t, w); !strings.HasPrefix(got.ScreenshotURL, "media/feedback/") {
		t.Errorf("screenshot url: %q", got.ScreenshotURL)
	}

	w = f.multipart(attachPath, bearer, "doc.pdf", []byte("%PDF"))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("pdf: %d", w.Code)
	}

	voicePath := fmt.Sprintf("/api/v1/feedback/%d/voice", fb.ID)
	w = f.multipart(voicePath, bearer, "note.mp3", []byte("mp3-bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("voice: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[store.Feedback](t, w); got.VoiceRecordingURL == "" {
		t.Error("voice url not set")
	}
}

func TestOnboarding(t *testing.T) {
	f := newFixture(t)
	bearer := f.signup("owner@example.com", "Owner")

	w := f.do("GET", "/api/v1/me", bearer, nil)
	if u := decodeBody[store.User](t, w); u.Onboarded {
		t.Fatal("onboarded before completing onboarding")
	}

	w = f.do("POST", "/api/v1/me/onboarding", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("onboarding: %d %s", w.Code, w.Body.String())
	}
	if u := decodeBody[store.User](t, w); !u.Onboarded {
		t.Error("not onboarded after completing onboarding")
	}
}
