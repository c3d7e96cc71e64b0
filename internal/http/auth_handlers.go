package http

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	applog "worklog/internal/log"
	"worklog/internal/store"
)

type authPageData struct {
	Error   string
	Message string
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderAuthPage(w, r, "login.html", "")
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.renderAuthPage(w, r, "login.html", "Invalid request format")
			return
		}
		token, err := s.auth.Login(r.Context(), r.Form.Get("email"), r.Form.Get("password"))
		if err != nil {
			s.log.InfoContext(r.Context(), "Login rejected", applog.FieldError, err)
			s.renderAuthPage(w, r, "login.html", "Invalid email or password")
			return
		}
		setSessionCookie(w, token, s.sessionTTL())
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderAuthPage(w, r, "register.html", "")
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.renderAuthPage(w, r, "register.html", "Invalid request format")
			return
		}
		email := r.Form.Get("email")
		password := r.Form.Get("password")
		if _, err := s.auth.Register(r.Context(), email, password); err != nil {
			msg := "Could not create the account"
			if errors.Is(err, store.ErrEmailTaken) {
				msg = "That email is already registered"
			}
			s.log.InfoContext(r.Context(), "Registration rejected", applog.FieldError, err)
			s.renderAuthPage(w, r, "register.html", msg)
			return
		}
		token, err := s.auth.Login(r.Context(), email, password)
		if err != nil {
			http.Redirect(w, r, "/login?msg="+url.QueryEscape("Account created, please sign in"), http.StatusSeeOther)
			return
		}
		setSessionCookie(w, token, s.sessionTTL())
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims := sessionClaims(r)
	s.dropLedger(r.Context(), claims.Subject)
	clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) sessionTTL() time.Duration {
	return s.auth.TTL()
}

func (s *Server) renderAuthPage(w http.ResponseWriter, r *http.Request, name, errMsg string) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if errMsg != "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	data := authPageData{Error: errMsg, Message: r.URL.Query().Get("msg")}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.log.ErrorContext(r.Context(), "Auth template execution failed", applog.FieldError, err, "template", name)
	}
}
