package twitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var successCookies = []string{
	"auth_token=newtok; Domain=.x.com; Path=/; Secure; HttpOnly",
	"ct0=newcsrf; Domain=.x.com; Path=/; Secure",
	"twid=u%3D777; Domain=.x.com; Path=/; Secure",
}

// loginServer scripts the onboarding flow: each submitted subtask id maps to
// the next subtask the server asks for. The init request is keyed "init".
type loginServer struct {
	mu     sync.Mutex
	next   map[string]string
	bodies map[string]string
	cookie map[string][]string
	inputs map[string]gjson.Result
}

func newLoginServer(next map[string]string) *loginServer {
	return &loginServer{
		next:   next,
		bodies: map[string]string{},
		cookie: map[string][]string{},
		inputs: map[string]gjson.Result{},
	}
}

func (l *loginServer) transport() *fakeTransport {
	return &fakeTransport{handler: func(req *Request) (*Response, error) {
		if req.URL == guestActivateURL {
			return jsonResponse(200, guestActivateBody), nil
		}
		if !strings.HasPrefix(req.URL, onboardingTaskURL) {
			return jsonResponse(404, `{}`), nil
		}
		step := "init"
		if !strings.Contains(req.URL, "flow_name=login") {
			in := gjson.GetBytes(req.Body, "subtask_inputs.0")
			step = in.Get("subtask_id").String()
			l.mu.Lock()
			l.inputs[step] = in
			l.mu.Unlock()
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if body, ok := l.bodies[step]; ok {
			return &Response{Status: 200, Body: []byte(body), SetCookies: l.cookie[step]}, nil
		}
		next, ok := l.next[step]
		if !ok {
			return jsonResponse(400, `{"errors":[{"code":366,"message":"flow step out of order"}]}`), nil
		}
		var subtasks string
		if next != "" {
			subtasks = fmt.Sprintf(`{"subtask_id":%q}`, next)
		}
		body := fmt.Sprintf(`{"flow_token":"ft-%s","status":"success","subtasks":[%s]}`, step, subtasks)
		return &Response{Status: 200, Body: []byte(body), SetCookies: l.cookie[step]}, nil
	}}
}

func TestLoginSuccess(t *testing.T) {
	ls := newLoginServer(map[string]string{
		"init":                          "LoginJsInstrumentationSubtask",
		"LoginJsInstrumentationSubtask": "LoginEnterUserIdentifierSSO",
		"LoginEnterUserIdentifierSSO":   "LoginEnterPassword",
		"LoginEnterPassword":            "AccountDuplicationCheck",
		"AccountDuplicationCheck":       "LoginSuccessSubtask",
	})
	ls.cookie["init"] = []string{"att=flow; Path=/"}
	ls.cookie["AccountDuplicationCheck"] = successCookies
	ft := ls.transport()
	c, _ := newTestClient(t, ft)

	err := c.Login(context.Background(), Credentials{Username: "gopher", Password: "hunter2"})
	require.NoError(t, err)

	assert.True(t, c.IsLoggedIn())
	assert.Equal(t, "777", c.Session().UserID())
	assert.Empty(t, c.Session().GuestToken())
	tok, _ := c.Session().cookies.Get("auth_token")
	assert.Equal(t, "newtok", tok)

	assert.Equal(t, "gopher", ls.inputs["LoginEnterUserIdentifierSSO"].Get("settings_list.setting_responses.0.response_data.text_data.result").String())
	assert.Equal(t, "hunter2", ls.inputs["LoginEnterPassword"].Get("enter_password.password").String())

	steps := ft.sent("onboarding/task.json")
	require.Len(t, steps, 5)
	for i, r := range steps {
		assert.Equal(t, "g-123", r.Header["x-guest-token"])
		assert.NotEmpty(t, r.Header["x-client-uuid"])
		if i > 0 {
			assert.Contains(t, r.Header["cookie"], "att=flow", "flow cookies are sent back")
			assert.Contains(t, string(r.Body), `"flow_token":"ft-`)
		}
	}
}

func TestLoginEmptySubtasksWithAuthTokenSucceeds(t *testing.T) {
	ls := newLoginServer(map[string]string{
		"init":               "LoginEnterPassword",
		"LoginEnterPassword": "",
	})
	ls.cookie["LoginEnterPassword"] = successCookies
	c, _ := newTestClient(t, ls.transport())

	require.NoError(t, c.Login(context.Background(), Credentials{Username: "gopher", Password: "pw"}))
	assert.True(t, c.IsLoggedIn())
}

func TestLoginSuccessWithoutAuthTokenFails(t *testing.T) {
	ls := newLoginServer(map[string]string{
		"init":               "LoginEnterPassword",
		"LoginEnterPassword": "LoginSuccessSubtask",
	})
	c, _ := newTestClient(t, ls.transport())

	err := c.Login(context.Background(), Credentials{Username: "gopher", Password: "pw"})
	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.False(t, c.IsLoggedIn())
}

func TestLoginUnknownSubtaskLeavesStateUnchanged(t *testing.T) {
	ls := newLoginServer(map[string]string{
		"init":               "LoginEnterPassword",
		"LoginEnterPassword": "LoginThirdPartyRiddle",
	})
	ls.cookie["LoginEnterPassword"] = successCookies
	c, _ := newTestClient(t, ls.transport())
	authenticate(t, c)
	before := c.Cookies()

	err := c.Login(context.Background(), Credentials{Username: "gopher", Password: "pw"})
	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "LoginThirdPartyRiddle", le.Subtask)
	assert.Contains(t, le.Error(), "LoginThirdPartyRiddle")

	assert.True(t, c.IsLoggedIn())
	assert.Equal(t, "42", c.Session().UserID())
	assert.Equal(t, before, c.Cookies(), "cookies from a failed negotiation are discarded")
}

func TestLoginDenied(t *testing.T) {
	ls := newLoginServer(map[string]string{"init": "LoginEnterPassword"})
	ls.bodies["LoginEnterPassword"] = `{"flow_token":"ft-x","subtasks":[{"subtask_id":"DenyLoginSubtask","cta":{"secondary_text":{"text":"Your account is locked."}}}]}`
	c, _ := newTestClient(t, ls.transport())

	err := c.Login(context.Background(), Credentials{Username: "gopher", Password: "pw"})
	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "Your account is locked.", le.Reason)
	assert.False(t, c.IsLoggedIn())
}

func TestLoginServerErrorReason(t *testing.T) {
	ls := newLoginServer(map[string]string{"init": "LoginEnterPassword"})
	ls.bodies["LoginEnterPassword"] = `{"errors":[{"code":399,"message":"Wrong password!"}]}`
	c, _ := newTestClient(t, ls.transport())

	err := c.Login(context.Background(), Credentials{Username: "gopher", Password: "bad"})
	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "Wrong password!", le.Reason)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 399, apiErr.Code)
}

func TestLoginTOTP(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	ls := newLoginServer(map[string]string{
		"init":                        "LoginEnterPassword",
		"LoginEnterPassword":          "LoginTwoFactorAuthChallenge",
		"LoginTwoFactorAuthChallenge": "LoginSuccessSubtask",
	})
	ls.cookie["LoginTwoFactorAuthChallenge"] = successCookies
	c, _ := newTestClient(t, ls.transport())
	c.Session().now = func() time.Time { return now }

	require.NoError(t, c.Login(context.Background(), Credentials{Username: "gopher", Password: "pw", TOTPSecret: secret}))

	want, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.Equal(t, want, ls.inputs["LoginTwoFactorAuthChallenge"].Get("enter_text.text").String())
}

func TestLoginPromptFillsMissingInputs(t *testing.T) {
	ls := newLoginServer(map[string]string{
		"init":               "LoginEnterPassword",
		"LoginEnterPassword": "LoginAcid",
		"LoginAcid":          "LoginSuccessSubtask",
	})
	ls.cookie["LoginAcid"] = successCookies
	c, _ := newTestClient(t, ls.transport())

	var asked []string
	creds := Credentials{
		Username: "gopher",
		Prompt: func(_ context.Context, subtask string) (string, error) {
			asked = append(asked, subtask)
			return "answer-" + subtask, nil
		},
	}
	require.NoError(t, c.Login(context.Background(), creds))
	assert.Equal(t, []string{"LoginEnterPassword", "LoginAcid"}, asked)
	assert.Equal(t, "answer-LoginAcid", ls.inputs["LoginAcid"].Get("enter_text.text").String())
}

func TestLoginMissingInput(t *testing.T) {
	ls := newLoginServer(map[string]string{"init": "LoginEnterPassword"})
	c, _ := newTestClient(t, ls.transport())

	err := c.Login(context.Background(), Credentials{Username: "gopher"})
	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "missing password", le.Reason)
	assert.Empty(t, ls.inputs, "nothing is submitted without the input")
}

type stubSolver struct {
	token string
	err   error
}

func (s stubSolver) Solve(context.Context, string, string) (string, error) { return s.token, s.err }

func TestLoginArkose(t *testing.T) {
	flow := map[string]string{
		"init":                 "LoginArkoseChallenge",
		"LoginArkoseChallenge": "LoginSuccessSubtask",
	}

	t.Run("no solver", func(t *testing.T) {
		c, _ := newTestClient(t, newLoginServer(flow).transport())
		err := c.Login(context.Background(), Credentials{Username: "gopher"})
		var le *LoginError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "LoginArkoseChallenge", le.Subtask)
	})

	t.Run("solved", func(t *testing.T) {
		ls := newLoginServer(flow)
		ls.cookie["LoginArkoseChallenge"] = successCookies
		c, _ := newTestClient(t, ls.transport(), func(cfg *ClientConfig) {
			cfg.CaptchaSolver = stubSolver{token: "solved-token"}
		})
		require.NoError(t, c.Login(context.Background(), Credentials{Username: "gopher"}))
		assert.Contains(t, ls.inputs["LoginArkoseChallenge"].Get("web_modal.completion_deeplink").String(), "access_token=solved-token")
	})

	t.Run("solver error", func(t *testing.T) {
		boom := errors.New("no balance")
		c, _ := newTestClient(t, newLoginServer(flow).transport(), func(cfg *ClientConfig) {
			cfg.CaptchaSolver = stubSolver{err: boom}
		})
		err := c.Login(context.Background(), Credentials{Username: "gopher"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestLoginRoundCap(t *testing.T) {
	ls := newLoginServer(map[string]string{
		"init":                          "LoginJsInstrumentationSubtask",
		"LoginJsInstrumentationSubtask": "LoginJsInstrumentationSubtask",
	})
	ft := ls.transport()
	c, _ := newTestClient(t, ft)

	err := c.Login(context.Background(), Credentials{Username: "gopher"})
	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.Len(t, ft.sent("onboarding/task.json"), maxLoginRounds+1)
}

func TestLoginTransportFailureIsNotRetried(t *testing.T) {
	var calls int
	ft := &fakeTransport{handler: func(req *Request) (*Response, error) {
		if req.URL == guestActivateURL {
			return jsonResponse(200, guestActivateBody), nil
		}
		calls++
		return nil, errors.New("connection reset")
	}}
	c, _ := newTestClient(t, ft)

	err := c.Login(context.Background(), Credentials{Username: "gopher", Password: "pw"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, calls)
}

func TestLoginMissingUsername(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestClient(t, ft)
	var le *LoginError
	require.ErrorAs(t, c.Login(context.Background(), Credentials{}), &le)
	assert.Empty(t, ft.requests)
}
