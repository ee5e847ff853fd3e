package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/tidwall/gjson"
)

// arkosePublicKey is Twitter's well-known FunCaptcha public key for login flows.
const arkosePublicKey = "0152B4EB-D2DC-460A-89A1-629838B529C9"

// maxLoginRounds bounds a negotiation against a server that never terminates it.
const maxLoginRounds = 20

// Credentials are the inputs a login negotiation may ask for. Only Username is
// always required; the server decides which of the others it needs.
type Credentials struct {
	Username string
	Password string

	// Email answers alternate-identifier and identity-confirmation prompts.
	Email string

	// TOTPSecret is the base32 seed for two-factor codes.
	TOTPSecret string

	// ConfirmationCode answers an emailed confirmation-code prompt.
	ConfirmationCode string

	// Prompt, if set, is asked for inputs the fields above do not supply.
	Prompt func(ctx context.Context, subtask string) (string, error)
}

// loginFlow is one negotiation attempt. Cookies land in a scratch store that is
// committed to the session only on success.
type loginFlow struct {
	s          *Session
	creds      Credentials
	cookies    *CookieStore
	guestToken string
	clientUUID string
	flowToken  string
}

// subtaskHandler builds the input for one server-requested subtask.
// A nil input with a nil error means the negotiation succeeded.
type subtaskHandler func(ctx context.Context, f *loginFlow, subtask gjson.Result) (map[string]any, error)

var errLoginDone = errors.New("login done")

// loginSubtasks maps subtask ids to handlers. Unknown ids end the negotiation.
var loginSubtasks = map[string]subtaskHandler{
	"LoginJsInstrumentationSubtask":        submitJsInstrumentation,
	"LoginEnterUserIdentifierSSO":          submitUserIdentifier,
	"LoginEnterAlternateIdentifierSubtask": submitAlternateIdentifier,
	"LoginEnterPassword":                   submitPassword,
	"AccountDuplicationCheck":              submitDuplicationCheck,
	"LoginTwoFactorAuthChallenge":          submitTOTP,
	"LoginAcid":                            submitConfirmationCode,
	"LoginArkoseChallenge":                 submitCaptcha,
	"LoginSuccessSubtask":                  finishLogin,
	"DenyLoginSubtask":                     denyLogin,
}

// Login runs the server-directed login negotiation. On success the session
// becomes authenticated with the negotiated cookies. On failure the session is
// left exactly as it was; a later call starts over.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if creds.Username == "" {
		return &LoginError{Reason: "missing username"}
	}
	slog.Info("logging in", slog.String("user", creds.Username))

	guestToken, ok := "", false
	if !s.IsAuthenticated() {
		guestToken, ok = s.guestTokenFresh()
	}
	if !ok {
		tok, err := s.activateGuest(ctx)
		if err != nil {
			return &AuthBootstrapError{Err: err}
		}
		guestToken = tok
	}

	f := &loginFlow{
		s:          s,
		creds:      creds,
		cookies:    NewCookieStore(),
		guestToken: guestToken,
		clientUUID: uuid.NewString(),
	}
	if err := f.run(ctx); err != nil {
		return err
	}

	s.install(f.cookies.Export())
	slog.Info("login successful", slog.String("user", creds.Username), slog.String("user_id", s.UserID()))
	return nil
}

func (f *loginFlow) run(ctx context.Context) error {
	resp, err := f.post(ctx, "", onboardingTaskURL+"?flow_name=login", loginFlowInitPayload)
	if err != nil {
		return err
	}

	for round := 0; round < maxLoginRounds; round++ {
		subtasks := resp.Get("subtasks").Array()
		if len(subtasks) == 0 {
			return f.complete()
		}
		subtask := subtasks[0]
		id := subtask.Get("subtask_id").String()
		slog.Debug("login subtask", slog.String("user", f.creds.Username), slog.String("subtask", id))

		handler, ok := loginSubtasks[id]
		if !ok {
			return &LoginError{Subtask: id, Reason: "unexpected subtask " + id}
		}
		input, err := handler(ctx, f, subtask)
		if errors.Is(err, errLoginDone) {
			return f.complete()
		}
		if err != nil {
			return err
		}
		input["subtask_id"] = id
		payload, err := json.Marshal(map[string]any{
			"flow_token":     f.flowToken,
			"subtask_inputs": []any{input},
		})
		if err != nil {
			return fmt.Errorf("encode %s input: %w", id, err)
		}
		if resp, err = f.post(ctx, id, onboardingTaskURL, payload); err != nil {
			return err
		}
	}
	return &LoginError{Reason: fmt.Sprintf("no result after %d rounds", maxLoginRounds)}
}

// post sends one negotiation step and returns the parsed flow response.
func (f *loginFlow) post(ctx context.Context, subtask, rawURL string, payload []byte) (gjson.Result, error) {
	req := f.s.newRequest("POST", rawURL, payload)
	req.Header["x-guest-token"] = f.guestToken
	req.Header["x-client-uuid"] = f.clientUUID
	if cookie := f.cookies.Header(rawURL); cookie != "" {
		req.Header["cookie"] = cookie
	}
	if ct0, ok := f.cookies.Get(ct0Cookie); ok {
		req.Header["x-csrf-token"] = ct0
	}

	resp, err := f.s.transport.Do(ctx, req)
	if err != nil {
		return gjson.Result{}, &TransportError{Op: "login " + stepName(subtask), Err: err}
	}
	f.cookies.Absorb(hostOf(rawURL), resp.SetCookies)

	if _, apiErr := classifyError(resp.Body); apiErr != nil {
		return gjson.Result{}, &LoginError{Subtask: subtask, Reason: apiErr.Message, Err: apiErr}
	}
	if resp.Status != 200 {
		return gjson.Result{}, &TransportError{Op: "login " + stepName(subtask), Status: resp.Status, Body: truncateBytes(resp.Body, 300)}
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, &MalformedResponseError{Op: "login " + stepName(subtask), Detail: "invalid JSON"}
	}
	result := gjson.ParseBytes(resp.Body)
	token := result.Get("flow_token").String()
	if token == "" {
		return gjson.Result{}, &MalformedResponseError{Op: "login " + stepName(subtask), Detail: "empty flow_token"}
	}
	f.flowToken = token
	return result, nil
}

// complete checks that the negotiation actually produced an authenticated cookie set.
func (f *loginFlow) complete() error {
	if tok, ok := f.cookies.Get(authTokenCookie); !ok || tok == "" {
		return &LoginError{Reason: "flow finished without auth_token cookie"}
	}
	ct0FromStore(f.cookies)
	return nil
}

// input returns a value from creds or, failing that, from the prompt.
func (f *loginFlow) input(ctx context.Context, subtask, value, what string) (string, error) {
	if value != "" {
		return value, nil
	}
	if f.creds.Prompt != nil {
		v, err := f.creds.Prompt(ctx, subtask)
		if err != nil {
			return "", &LoginError{Subtask: subtask, Reason: "prompt for " + what, Err: err}
		}
		if v != "" {
			return v, nil
		}
	}
	return "", &LoginError{Subtask: subtask, Reason: "missing " + what}
}

func stepName(subtask string) string {
	if subtask == "" {
		return "init"
	}
	return subtask
}

func submitJsInstrumentation(_ context.Context, _ *loginFlow, _ gjson.Result) (map[string]any, error) {
	return map[string]any{
		"js_instrumentation": map[string]any{"response": "{}", "link": "next_link"},
	}, nil
}

func submitUserIdentifier(_ context.Context, f *loginFlow, _ gjson.Result) (map[string]any, error) {
	return map[string]any{
		"settings_list": map[string]any{
			"setting_responses": []any{map[string]any{
				"key":           "user_identifier",
				"response_data": map[string]any{"text_data": map[string]any{"result": f.creds.Username}},
			}},
			"link": "next_link",
		},
	}, nil
}

func submitAlternateIdentifier(ctx context.Context, f *loginFlow, st gjson.Result) (map[string]any, error) {
	id := f.creds.Email
	if id == "" {
		id = f.creds.Username
	}
	text, err := f.input(ctx, st.Get("subtask_id").String(), id, "alternate identifier")
	if err != nil {
		return nil, err
	}
	return enterText(text), nil
}

func submitPassword(ctx context.Context, f *loginFlow, st gjson.Result) (map[string]any, error) {
	pw, err := f.input(ctx, st.Get("subtask_id").String(), f.creds.Password, "password")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"enter_password": map[string]any{"password": pw, "link": "next_link"},
	}, nil
}

func submitDuplicationCheck(_ context.Context, _ *loginFlow, _ gjson.Result) (map[string]any, error) {
	return map[string]any{
		"check_logged_in_account": map[string]any{"link": "AccountDuplicationCheck_false"},
	}, nil
}

func submitTOTP(ctx context.Context, f *loginFlow, st gjson.Result) (map[string]any, error) {
	id := st.Get("subtask_id").String()
	if f.creds.TOTPSecret == "" {
		code, err := f.input(ctx, id, "", "two-factor code")
		if err != nil {
			return nil, err
		}
		return enterText(code), nil
	}
	code, err := totp.GenerateCode(f.creds.TOTPSecret, f.s.now())
	if err != nil {
		return nil, &LoginError{Subtask: id, Reason: "generate TOTP code", Err: err}
	}
	slog.Debug("submitting TOTP code", slog.String("user", f.creds.Username))
	return enterText(code), nil
}

// submitConfirmationCode answers LoginAcid, which asks either for an emailed
// code or for the account's email address.
func submitConfirmationCode(ctx context.Context, f *loginFlow, st gjson.Result) (map[string]any, error) {
	value := f.creds.ConfirmationCode
	if value == "" {
		value = f.creds.Email
	}
	text, err := f.input(ctx, st.Get("subtask_id").String(), value, "confirmation code")
	if err != nil {
		return nil, err
	}
	return enterText(text), nil
}

func submitCaptcha(ctx context.Context, f *loginFlow, st gjson.Result) (map[string]any, error) {
	id := st.Get("subtask_id").String()
	if f.s.captcha == nil {
		return nil, &LoginError{Subtask: id, Reason: "CAPTCHA required but no solver configured"}
	}
	solveCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()
	token, err := f.s.captcha.Solve(solveCtx, arkosePublicKey, "https://x.com")
	if err != nil {
		return nil, &LoginError{Subtask: id, Reason: "CAPTCHA solve failed", Err: err}
	}
	slog.Info("CAPTCHA solved for login", slog.String("user", f.creds.Username))
	return map[string]any{
		"web_modal": map[string]any{
			"completion_deeplink": "twitter://onboarding/web_modal/next_link?access_token=" + token,
		},
	}, nil
}

func finishLogin(_ context.Context, f *loginFlow, _ gjson.Result) (map[string]any, error) {
	slog.Debug("login flow complete", slog.String("user", f.creds.Username))
	return nil, errLoginDone
}

func denyLogin(_ context.Context, _ *loginFlow, st gjson.Result) (map[string]any, error) {
	reason := st.Get("cta.secondary_text.text").String()
	if reason == "" {
		reason = st.Get("cta.primary_text.text").String()
	}
	if reason == "" {
		reason = "login denied (account may be locked or disabled)"
	}
	return nil, &LoginError{Subtask: "DenyLoginSubtask", Reason: reason}
}

func enterText(text string) map[string]any {
	return map[string]any{
		"enter_text": map[string]any{"text": text, "link": "next_link"},
	}
}

// loginFlowInitPayload is the subtask_versions body for flow_name=login.
var loginFlowInitPayload = []byte(`{"input_flow_data":{"flow_context":{"debug_overrides":{},"start_location":{"location":"splash_screen"}}},"subtask_versions":{"action_list":2,"alert_dialog":1,"app_download_cta":1,"check_logged_in_account":1,"choice_selection":3,"contacts_live_sync_permission_prompt":0,"cta":7,"email_verification":2,"end_flow":1,"enter_date":1,"enter_email":2,"enter_password":5,"enter_phone":2,"enter_recaptcha":1,"enter_text":5,"enter_username":2,"generic_urt":3,"in_app_notification":1,"interest_picker":3,"js_instrumentation":1,"menu_dialog":1,"notifications_permission_prompt":2,"open_account":2,"open_home_timeline":1,"open_link":1,"phone_verification":4,"privacy_options":1,"security_key":3,"select_avatar":4,"select_banner":2,"settings_list":7,"show_code":1,"sign_up":2,"sign_up_review":4,"tweet_selection_urt":1,"update_users":1,"upload_media":1,"user_recommendations_list":4,"user_recommendations_urt":1,"wait_spinner":3,"web_modal":1}}`)
