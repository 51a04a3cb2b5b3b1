// Package httpapi is the HTTP front end of patrongate. It stays thin:
// parse the request, build the connection context, dispatch to the
// server facade, and serialize exactly one response body.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	"github.com/patrongate/patrongate/pkg/server"
	serverconfig "github.com/patrongate/patrongate/pkg/server/config"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

type API struct {
	server *server.Server
	config *serverconfig.Config
	logger logger.Logger
}

// NewHandler builds the routed and middleware-wrapped handler for the
// whole API surface.
func NewHandler(srv *server.Server, cfg *serverconfig.Config, l logger.Logger) http.Handler {
	api := &API{server: srv, config: cfg, logger: l}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", api.health)
	mux.HandleFunc("GET /patrons", api.getPatrons)
	mux.HandleFunc("GET /patrons/self", api.getPatronSelf)
	mux.HandleFunc("GET /patrons/{id}", api.getPatron)
	mux.HandleFunc("PUT /patrons/{id}", api.putPatron)
	mux.HandleFunc("GET /patrons/{id}/summary", api.getPatronSummary)
	mux.HandleFunc("DELETE /patrons/{id}/credentials", api.deletePatronCredentials)
	mux.HandleFunc("POST /password/update", api.postPasswordUpdate)
	mux.HandleFunc("POST /password-reset/link", api.postResetLink)
	mux.HandleFunc("POST /password-reset/validate", api.postResetValidate)
	mux.HandleFunc("POST /password-reset/reset", api.postResetPassword)
	mux.HandleFunc("POST /forgotten/password", api.postForgottenPassword)
	mux.HandleFunc("POST /forgotten/username", api.postForgottenUsername)

	var handler http.Handler = mux
	handler = instrument(handler)
	if cfg.Authn.Method == "preshared" {
		handler = presharedAuthn(cfg.Authn.Keys, handler)
	}
	handler = requestID(handler)
	handler = recovery(l, handler)
	return handler
}

// connection builds the outbound connection context from the inbound
// request. Tenant and token forward as-is; the caller address rides the
// forwarding header.
func (a *API) connection(r *http.Request) *gateway.ConnectionContext {
	forwardedFor := r.Header.Get(gateway.ForwardedForHeader)
	if forwardedFor == "" {
		forwardedFor = strings.SplitN(r.RemoteAddr, ":", 2)[0]
	}
	return &gateway.ConnectionContext{
		GatewayURL:   a.config.GatewayURL,
		TenantID:     r.Header.Get(gateway.TenantHeader),
		AuthToken:    r.Header.Get(gateway.AuthTokenHeader),
		ForwardedFor: forwardedFor,
		RequestID:    requestIDFromContext(r.Context()),
	}
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) getPatron(w http.ResponseWriter, r *http.Request) {
	composite, err := a.server.GetPatron(r.Context(), a.connection(r), r.PathValue("id"), includesParam(r))
	a.respond(w, r, composite, err)
}

func (a *API) getPatronSelf(w http.ResponseWriter, r *http.Request) {
	composite, err := a.server.GetPatronSelf(r.Context(), a.connection(r), includesParam(r))
	a.respond(w, r, composite, err)
}

func (a *API) getPatrons(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			a.respond(w, r, nil, serverErrors.UnprocessableInput("limit.invalid", raw))
			return
		}
		limit = parsed
	}
	page, err := a.server.GetPatrons(r.Context(), a.connection(r), r.URL.Query().Get("query"), limit, includesParam(r))
	a.respond(w, r, page, err)
}

func (a *API) putPatron(w http.ResponseWriter, r *http.Request) {
	var user map[string]any
	if err := decodeBody(r, &user); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	if err := a.server.UpdatePatron(r.Context(), a.connection(r), r.PathValue("id"), user); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) postPasswordUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password    string `json:"password"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	if err := a.server.ChangePassword(r.Context(), a.connection(r), body.Password, body.NewPassword); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deletePatronCredentials(w http.ResponseWriter, r *http.Request) {
	if err := a.server.DeletePatronCredentials(r.Context(), a.connection(r), r.PathValue("id")); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getPatronSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.server.GetPatronSummary(r.Context(), a.connection(r), r.PathValue("id"))
	a.respond(w, r, summary, err)
}

func (a *API) postResetLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	if body.UserID == "" {
		a.respond(w, r, nil, serverErrors.UnprocessableInput("userId.absent", "userId is required"))
		return
	}
	link, err := a.server.GenerateResetLink(r.Context(), a.connection(r), body.UserID)
	a.respond(w, r, link, err)
}

func (a *API) postResetValidate(w http.ResponseWriter, r *http.Request) {
	if err := a.server.ValidateResetLink(r.Context(), a.connection(r)); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) postResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	if err := a.server.ResetPassword(r.Context(), a.connection(r), body.NewPassword); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) postForgottenPassword(w http.ResponseWriter, r *http.Request) {
	identifier, err := identifierBody(r)
	if err != nil {
		a.respond(w, r, nil, err)
		return
	}
	// The link travels to the user over the notification channel; the
	// response deliberately carries nothing a caller could probe with.
	if _, err := a.server.ForgottenPassword(r.Context(), a.connection(r), identifier); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) postForgottenUsername(w http.ResponseWriter, r *http.Request) {
	identifier, err := identifierBody(r)
	if err != nil {
		a.respond(w, r, nil, err)
		return
	}
	if err := a.server.ForgottenUsername(r.Context(), a.connection(r), identifier); err != nil {
		a.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// includesParam parses the include query parameter, accepting both the
// repeated and the comma-separated form. Nil means no narrowing.
func includesParam(r *http.Request) []string {
	raw, present := r.URL.Query()["include"]
	if !present {
		return nil
	}
	var includes []string
	for _, value := range raw {
		for _, include := range strings.Split(value, ",") {
			if include = strings.TrimSpace(include); include != "" {
				includes = append(includes, include)
			}
		}
	}
	if includes == nil {
		includes = []string{}
	}
	return includes
}

func identifierBody(r *http.Request) (string, error) {
	var body struct {
		Identifier string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		return "", err
	}
	return body.Identifier, nil
}

func decodeBody(r *http.Request, target any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(target); err != nil {
		return serverErrors.UnprocessableInput("body.malformed", err.Error())
	}
	return nil
}

// respond writes the single response body for a request: the payload on
// success, the encoded error otherwise.
func (a *API) respond(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err != nil {
		encoded := serverErrors.FromError(err)
		if internal := encoded.Internal(); internal != nil {
			a.logger.Error("request failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Error(internal))
		}
		writeJSON(w, encoded.HTTPStatus(), encoded.ActualError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
