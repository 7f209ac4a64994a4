package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/auth"
)

var signInPage = template.Must(template.New("sign-in").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Sign in · engine-proxy</title></head>
<body>
<h1>Admin sign in</h1>
{{if .Message}}<p role="alert">{{.Message}}</p>{{end}}
<form method="post" action="/admin/sign-in">
<input type="hidden" name="redirectTo" value="{{.RedirectTo}}">
<label>Username <input name="username" autocomplete="username" value="{{.Username}}"></label>
<label>Password <input name="password" type="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

type signInView struct {
	Message    string
	RedirectTo string
	Username   string
}

type signInRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirectTo"`
}

func (s *Server) signInForm(w http.ResponseWriter, r *http.Request) {
	view := signInView{RedirectTo: auth.SanitizeRedirect(r.URL.Query().Get(auth.RedirectParam))}
	if !s.gate.Configured() {
		view.Message = auth.MsgNotConfigured
	}
	s.renderSignIn(w, http.StatusOK, view)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	req, isJSON, err := parseSignIn(w, r)
	if err != nil {
		if isJSON {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		s.renderSignIn(w, http.StatusBadRequest, signInView{Message: "Invalid form submission.", RedirectTo: auth.DefaultRedirect})
		return
	}
	target := auth.SanitizeRedirect(req.RedirectTo)

	token, err := s.gate.SignIn(req.Username, req.Password)
	if err != nil {
		status := signInStatus(err)
		if isJSON {
			s.writeError(w, status, auth.Message(err))
			return
		}
		s.renderSignIn(w, status, signInView{Message: auth.Message(err), RedirectTo: target, Username: req.Username})
		return
	}

	s.gate.SetSession(w, r, token)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	s.gate.ClearSession(w, r)
	http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
}

func (s *Server) renderSignIn(w http.ResponseWriter, status int, view signInView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := signInPage.Execute(w, view); err != nil {
		s.logger.Error("render sign-in failed", zap.Error(err))
	}
}

func parseSignIn(w http.ResponseWriter, r *http.Request) (signInRequest, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return signInRequest{}, true, err
		}
		return req, true, nil
	}
	if err := r.ParseForm(); err != nil {
		return signInRequest{}, false, err
	}
	return signInRequest{
		Username:   r.PostForm.Get("username"),
		Password:   r.PostForm.Get("password"),
		RedirectTo: r.PostForm.Get(auth.RedirectParam),
	}, false, nil
}

func signInStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
