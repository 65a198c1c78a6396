package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/s/lifelessons/internal/api"
	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/models"
)

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.loginPage(w, r, false)
}

// HandleRegister shows the sign up form. Google accounts are created on
// their first login instead.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	h.loginPage(w, r, true)
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request, register bool) {
	from := safeReturn(r.URL.Query().Get("from"))
	if v := auth.FromContext(r.Context()); v.Authenticated {
		http.Redirect(w, r, from, http.StatusSeeOther)
		return
	}
	h.renderAccount(w, r, http.StatusOK, register, AccountForm{}, nil, from)
}

func (h *Handler) renderAccount(w http.ResponseWriter, r *http.Request, status int, register bool, form AccountForm, errs map[string]string, from string) {
	title := "Login"
	if register {
		title = "Register"
	}
	data := h.Base(w, r, title)
	data.From = from
	data.Register = register
	form.Password = ""
	data.Account, data.Errors = form, errs
	h.Render(w, status, "login", data)
}

// AccountForm is the sign up or sign in form as submitted.
type AccountForm struct {
	Name     string
	Email    string
	Password string
}

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

func parseAccountForm(r *http.Request) AccountForm {
	return AccountForm{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
}

// validate checks the form before anything is sent to the identity
// provider. Sign in applies the same password rules: no account can have a
// password that breaks them.
func (f AccountForm) validate(register bool) map[string]string {
	errs := map[string]string{}
	if register {
		switch {
		case f.Name == "":
			errs["name"] = "Name is required"
		case utf8.RuneCountInString(f.Name) < 2:
			errs["name"] = "Name must be at least 2 characters"
		}
	}
	switch {
	case f.Email == "":
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(f.Email):
		errs["email"] = "Enter a valid email"
	}
	if msg := passwordProblem(f.Password); msg != "" {
		errs["password"] = msg
	}
	return errs
}

func passwordProblem(p string) string {
	switch {
	case p == "":
		return "Password is required"
	case utf8.RuneCountInString(p) < 6:
		return "Length must be at least 6 characters"
	case !strings.ContainsFunc(p, unicode.IsUpper):
		return "Must have an Uppercase letter in the password"
	case !strings.ContainsFunc(p, unicode.IsLower):
		return "Must have a Lowercase letter in the password"
	}
	return ""
}

// HandlePasswordLogin signs in an email/password account.
func (h *Handler) HandlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	from := safeReturn(r.FormValue("from"))
	if h.Passwords == nil {
		h.Redirect(w, r, "/login", auth.FlashError, "Login is not available right now")
		return
	}
	form := parseAccountForm(r)
	if errs := form.validate(false); len(errs) > 0 {
		h.renderAccount(w, r, http.StatusUnprocessableEntity, false, form, errs, from)
		return
	}

	tokens, err := h.Passwords.SignIn(r.Context(), form.Email, form.Password)
	if err != nil {
		h.log.Info("password sign in refused", "error", err)
		msg := auth.AccountErrorMessage(err, "Invalid email or password")
		h.renderAccount(w, r, http.StatusUnauthorized, false, form, map[string]string{"form": msg}, from)
		return
	}
	h.completeLogin(w, r, tokens, models.SyncRequest{Email: tokens.Identity.Email}, from, "Login successful")
}

// HandlePasswordRegister creates an email/password account. The picture is
// optional and goes through the image uploader.
func (h *Handler) HandlePasswordRegister(w http.ResponseWriter, r *http.Request) {
	if h.Passwords == nil {
		h.Redirect(w, r, "/register", auth.FlashError, "Registration is not available right now")
		return
	}
	if err := parseUpload(r); err != nil {
		h.Redirect(w, r, "/register", auth.FlashError, "Could not read the form")
		return
	}
	from := safeReturn(r.FormValue("from"))
	form := parseAccountForm(r)
	if errs := form.validate(true); len(errs) > 0 {
		h.renderAccount(w, r, http.StatusUnprocessableEntity, true, form, errs, from)
		return
	}

	photo := auth.DefaultPhotoURL
	uploaded, ok, err := h.uploadImage(r, "image")
	if err != nil {
		h.log.Warn("profile picture upload failed", "error", err)
		h.renderAccount(w, r, http.StatusBadGateway, true, form, map[string]string{"image": "Image upload failed"}, from)
		return
	}
	if ok {
		photo = uploaded
	}

	tokens, err := h.Passwords.SignUp(r.Context(), auth.Registration{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		PhotoURL: photo,
	})
	if err != nil {
		h.log.Info("password sign up refused", "error", err)
		msg := auth.AccountErrorMessage(err, "Registration failed, please try again")
		h.renderAccount(w, r, http.StatusUnprocessableEntity, true, form, map[string]string{"form": msg}, from)
		return
	}
	h.completeLogin(w, r, tokens, models.SyncRequest{Name: form.Name, PhotoURL: photo, Email: tokens.Identity.Email}, from, "Registration successful")
}

func (h *Handler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		h.Redirect(w, r, "/login", auth.FlashError, "Login is not available right now")
		return
	}
	state := uuid.NewString()
	if err := h.Sessions.BeginLogin(w, r, state, safeReturn(r.URL.Query().Get("from"))); err != nil {
		h.log.Error("session save failed", "error", err)
		h.Redirect(w, r, "/login", auth.FlashError, "Login failed, please try again")
		return
	}
	http.Redirect(w, r, h.Provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *Handler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		h.NotFound(w, r)
		return
	}
	state, returnTo := h.Sessions.TakeLogin(w, r)
	q := r.URL.Query()
	if q.Get("error") != "" {
		h.Redirect(w, r, "/login", auth.FlashInfo, "Login was cancelled")
		return
	}
	if state == "" || q.Get("state") != state {
		h.log.Warn("oauth state mismatch")
		h.Redirect(w, r, "/login", auth.FlashError, "Login failed, please try again")
		return
	}

	tokens, err := h.Provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.log.Warn("token exchange failed", "error", err)
		h.Redirect(w, r, "/login", auth.FlashError, "Login failed, please try again")
		return
	}

	h.completeLogin(w, r, tokens, models.SyncRequest{
		Name:     tokens.Identity.Name,
		PhotoURL: tokens.Identity.Picture,
		Email:    tokens.Identity.Email,
	}, returnTo, "Login successful")
}

// completeLogin syncs the account with the API, whose user id becomes the
// session user id, and starts the session. A failed sync still logs the
// viewer in.
func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, tokens auth.Tokens, profile models.SyncRequest, returnTo, notice string) {
	ctx := api.WithBearer(r.Context(), tokens.IDToken)
	user, err := h.API.SyncUser(ctx, profile)
	if err != nil {
		h.log.Warn("user sync failed", "error", err)
	}

	if err := h.Sessions.Login(w, r, tokens, user.ID); err != nil {
		h.log.Error("session save failed", "error", err)
		h.Redirect(w, r, "/login", auth.FlashError, "Login failed, please try again")
		return
	}
	if user.ID != "" {
		h.Activity.Record(r.Context(), user.ID, models.ActionLogin, "", nil)
	}
	h.Redirect(w, r, safeReturn(returnTo), auth.FlashSuccess, notice)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	h.Resolver.Forget(r.Context(), v)
	if err := h.Sessions.Clear(w, r); err != nil {
		h.log.Warn("session clear failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
