package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"sheet-rag/internal/config"
	"sheet-rag/internal/models"
	"sheet-rag/internal/session"
)

const sessionCookie = "sheet_rag_session"

type Server struct {
	cfg      *config.Config
	sessions *session.Manager
	md       goldmark.Markdown
	page     *template.Template
}

// pageData is everything the single page renders.
type pageData struct {
	State    string
	Source   string
	Chunks   int
	Success  string
	Error    string
	Question string
	Answer   template.HTML
	Sources  []string
}

func NewServer(cfg *config.Config, sessions *session.Manager) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		page: template.Must(template.New("page").Parse(pageTemplate)),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.indexHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /upload", s.uploadHandler)
	mux.HandleFunc("POST /ask", s.askHandler)
	mux.HandleFunc("POST /clear", s.clearHandler)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.App.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Serving web UI")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// session returns the caller's session, starting one and setting the cookie if needed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess := s.sessions.Get(c.Value); sess != nil {
			return sess, nil
		}
	}
	sess, err := s.sessions.Create()
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, sess, http.StatusOK, pageData{})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	maxBytes := s.cfg.App.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.render(w, sess, http.StatusBadRequest, pageData{Error: "Upload failed: " + err.Error()})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.render(w, sess, http.StatusBadRequest, pageData{Error: models.MissingInputMessage})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.render(w, sess, http.StatusBadRequest, pageData{Error: "Upload failed: " + err.Error()})
		return
	}

	if err := sess.Upload(r.Context(), data, header.Filename); err != nil {
		s.render(w, sess, http.StatusUnprocessableEntity, pageData{Error: session.IngestMessage(err)})
		return
	}
	s.render(w, sess, http.StatusOK, pageData{Success: models.UploadedMessage})
}

func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	question := strings.TrimSpace(r.FormValue("question"))
	if question == "" {
		s.render(w, sess, http.StatusBadRequest, pageData{Error: models.MissingInputMessage})
		return
	}

	data := pageData{Question: question}
	res, err := sess.Query(r.Context(), question)
	switch {
	case errors.Is(err, models.ErrEmptySession):
		data.Error = models.NoDocumentMessage
	case err != nil:
		data.Error = models.QueryErrorPrefix + ": " + err.Error()
	default:
		data.Answer = s.markdown(res.Content)
		if res.Source != "" {
			data.Sources = strings.Split(res.Source, models.SourceSeparator)
		}
	}
	s.render(w, sess, http.StatusOK, data)
}

func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sess.Clear()
	s.render(w, sess, http.StatusOK, pageData{Success: models.ClearedMessage})
}

func (s *Server) markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func (s *Server) render(w http.ResponseWriter, sess *session.Session, status int, data pageData) {
	data.State = sess.State().String()
	data.Source = sess.Source()
	data.Chunks = sess.Chunks()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Error rendering page")
	}
}
