package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/bookmarkbox/internal/auth"
	"github.com/sakif/bookmarkbox/internal/service"
)

// AuthHandler manages the GitHub OAuth login flow and session management.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code, exchange it for a user, issue JWT
//   - HandleLogout         → clear the JWT cookie
//   - HandleMe             → return the currently logged-in user's profile
//
// DEPENDENCY CHAIN:
//   - github *auth.GitHubProvider → performs the OAuth code exchange
//   - auths  *service.AuthService → upserts the user and issues the session token
//
// SIGN-IN PAGE REASON CODES:
// Callback failures never dead-end on an error page. The browser is sent
// back to the sign-in page with a machine-readable reason in the query
// string, so the page can explain what happened:
//
//	/login?error=no_code     → GitHub called back without an authorization code
//	/login?error=auth_failed → the user denied access, or the exchange/save failed
type AuthHandler struct {
	github *auth.GitHubProvider
	auths  *service.AuthService
	logger *slog.Logger
}

// loginPath is where unauthenticated users land. Callback failures redirect
// here with an ?error= reason appended.
const loginPath = "/login"

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(github *auth.GitHubProvider, auths *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		github: github,
		auths:  auths,
		logger: logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When GitHub calls back, HandleGitHubCallback verifies the state matches.
// This proves the callback was initiated by this server, not a CSRF attacker.
//
// The state cookie is:
//   - HttpOnly: JavaScript can't read it
//   - SameSite=Lax: not sent on cross-site POSTs (extra CSRF protection)
//   - 10-minute expiry: long enough for the user to approve, short enough to limit risk
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	// Generate a random, unguessable state value
	state := xid.New().String()

	// Store it in a cookie so we can verify it on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// Redirect the browser to GitHub
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Distinguish the two failure shapes GitHub can send:
//     - error param present (user clicked "Cancel")     → ?error=auth_failed
//     - no error AND no code (malformed/stripped params) → ?error=no_code
//  3. Exchange the code for a GitHub user profile
//  4. Upsert the user and issue a JWT (service.AuthService)
//  5. Set the session cookie and redirect to the app home page
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		h.redirectToLogin(w, r, "auth_failed")
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch",
			slog.String("expected", stateCookie.Value),
			slog.String("got", r.URL.Query().Get("state")),
		)
		h.redirectToLogin(w, r, "auth_failed")
		return
	}

	// Clear the state cookie — it's single-use
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// --- Step 2: Classify failure shapes ---
	// GitHub sent an error: the user denied authorization (or the app
	// config is broken). Either way the sign-in did not happen.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: provider returned error",
			slog.String("error", errParam),
		)
		h.redirectToLogin(w, r, "auth_failed")
		return
	}

	// No error, but no code either — the callback is malformed.
	code := r.URL.Query().Get("code")
	if code == "" {
		h.logger.Warn("auth callback: no code in callback")
		h.redirectToLogin(w, r, "no_code")
		return
	}

	// --- Step 3: Exchange code for GitHub user profile ---
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		h.redirectToLogin(w, r, "auth_failed")
		return
	}

	// --- Step 4: Upsert user and issue the session token ---
	result, err := h.auths.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		h.redirectToLogin(w, r, "auth_failed")
		return
	}

	h.logger.Info("user authenticated",
		slog.String("userID", result.User.ID),
		slog.String("login", result.User.Login),
	)

	// --- Step 5: Set the session cookie and redirect ---
	// HttpOnly = JavaScript cannot read this cookie (XSS protection).
	// SameSite=Lax = cookie is sent on top-level navigations but not cross-site POSTs.
	// Secure should be true in production (HTTPS only). We leave it false for local dev.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(auth.SessionDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // Uncomment in production (requires HTTPS)
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// redirectToLogin sends the browser back to the sign-in page with a
// machine-readable reason code the page can render.
func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, loginPath+"?error="+reason, http.StatusSeeOther)
}

// HandleLogout clears the JWT cookie, effectively logging the user out.
//
// HTTP: POST /auth/logout
//
// WHY POST AND NOT GET?
// Logout is a state-changing operation. Using GET would be vulnerable to
// CSRF and to browsers pre-fetching the URL. POST ensures intentional action.
//
// Since we're stateless (JWT), "logout" just means deleting the client-side
// cookie. The token remains technically valid until it expires, but without
// the cookie the browser can't send it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth middleware sets userID in context)
//
// This is what the frontend's session gate calls on load: a 200 means there
// is a live session and the app can render; a 401 means redirect to login.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	// Auth middleware has already validated the JWT and set userID in context.
	// UserIDFromContext will always return (id, true) on this protected route.
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.auths.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: user not found", slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
